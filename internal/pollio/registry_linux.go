//go:build linux

package pollio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Registry owns a kernel epoll descriptor and the map from descriptor
// number to the Entry registered under it. It is not safe for concurrent
// use by more than one goroutine — each MatchOrchestrator owns exactly one
// Registry, per the single-threaded-cooperative-per-match scheduling model.
type Registry struct {
	epfd    int
	entries map[int]Entry
	closed  bool
}

// NewRegistry creates an empty Registry backed by a fresh epoll instance.
func NewRegistry() (*Registry, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("pollio: create epoll: %w", err)
	}
	return &Registry{
		epfd:    fd,
		entries: make(map[int]Entry),
	}, nil
}

// Register adds entry's descriptor to the kernel set with the standard
// {readable, peer-hung-up} interest, then inserts it into the map. If the
// kernel add fails, nothing is inserted — register is atomic in that sense.
func (r *Registry) Register(entry Entry) error {
	fd := entry.FD()
	if _, ok := r.entries[fd]; ok {
		return ErrFDAlreadyRegistered
	}

	ev := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("pollio: register fd %d: %w", fd, err)
	}

	r.entries[fd] = entry
	return nil
}

// Unregister removes fd from the kernel set and the map, returning the
// removed Entry. The kernel-remove happens before the map delete so that,
// if it fails, the entry remains registered and the caller may retry.
func (r *Registry) Unregister(fd int) (Entry, error) {
	entry, ok := r.entries[fd]
	if !ok {
		return nil, ErrNotRegistered
	}

	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return nil, fmt.Errorf("pollio: unregister fd %d: %w", fd, err)
	}

	delete(r.entries, fd)
	return entry, nil
}

// Event is one (fd, readiness) pair returned by Poll.
type Event struct {
	FD        int
	Readiness Readiness
}

// Poll blocks until at least one descriptor is ready or timeoutMs elapses.
// Returns an empty slice on timeout. maxEvents bounds the kernel event
// buffer; callers typically pass len(registry.entries).
func (r *Registry) Poll(timeoutMs int, maxEvents int) ([]Event, error) {
	if maxEvents <= 0 {
		maxEvents = 1
	}
	raw := make([]unix.EpollEvent, maxEvents)

	n, err := unix.EpollWait(r.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("pollio: epoll_wait: %w", err)
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Event{
			FD:        int(raw[i].Fd),
			Readiness: epollToReadiness(raw[i].Events),
		})
	}
	return out, nil
}

// Dispatch looks up fd's Entry and invokes its reaction. An unknown fd
// (the entry was already removed by a prior event in the same batch)
// yields Nop rather than an error — it's a late-fired event, not a bug.
func (r *Registry) Dispatch(ev Event) (CallbackMessage, error) {
	entry, ok := r.entries[ev.FD]
	if !ok {
		return Nop, nil
	}
	return entry.React(ev.Readiness)
}

// IsEmpty reports whether no descriptors remain registered.
func (r *Registry) IsEmpty() bool {
	return len(r.entries) == 0
}

// Entries returns a snapshot of the currently registered entries, for
// sibling-kill traversal during cascade failure.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Close closes the epoll descriptor exactly once, regardless of how many
// times it's called.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return unix.Close(r.epfd)
}

func epollToReadiness(events uint32) Readiness {
	var r Readiness
	if events&unix.EPOLLIN != 0 {
		r |= Readable
	}
	if events&unix.EPOLLHUP != 0 {
		r |= HungUp
	}
	if events&(unix.EPOLLERR) != 0 {
		r |= PollError
	}
	return r
}
