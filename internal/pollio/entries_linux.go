//go:build linux

package pollio

import (
	"fmt"

	"github.com/delta/matchdriver/internal/logbuf"
	"github.com/delta/matchdriver/internal/participant"
	"golang.org/x/sys/unix"
)

// ExitWatch wraps a ChildProcess and the process-exit notification
// descriptor (a Linux pidfd) that becomes readable exactly once, when the
// process has exited. It never reaps the process itself — React always
// returns HandleExplicitly so the orchestrator owns the reap and the
// consequent failure-cascade decision.
type ExitWatch struct {
	fd      int
	Process *ChildProcess
}

// NewExitWatch registers proc under the pidfd fd. The caller retains
// ownership of fd for the lifetime of the ExitWatch (it's closed when the
// watch is unregistered and the process reaped/killed via os.Process).
func NewExitWatch(fd int, proc *ChildProcess) *ExitWatch {
	return &ExitWatch{fd: fd, Process: proc}
}

func (e *ExitWatch) FD() int { return e.fd }

func (e *ExitWatch) Tag() participant.Tag { return e.Process.Tag }

// React always hands the event back to the orchestrator: the event loop
// itself is not allowed to decide success/failure classification or to
// trigger a cascade-kill, since doing either from inside Dispatch would
// make the registry's bookkeeping racy with the sweep the orchestrator
// runs over its own snapshot of Entries().
func (e *ExitWatch) React(_ Readiness) (CallbackMessage, error) {
	return HandleExplicitly, nil
}

// LogReader watches a child's stderr descriptor, appending readable bytes
// into a bounded logbuf.Buffer and signalling Unregister on hang-up.
type LogReader struct {
	fd     int
	tag    participant.Tag
	buf    *logbuf.Buffer
	scratch [32 * 1024]byte
}

// NewLogReader wraps fd (the read end of a child's stderr pipe) with a
// buffer capped per cap (pass <= 0 for the simulator's unbounded buffer).
func NewLogReader(fd int, tag participant.Tag, cap int) *LogReader {
	return &LogReader{fd: fd, tag: tag, buf: logbuf.New(cap)}
}

func (l *LogReader) FD() int { return l.fd }

func (l *LogReader) Tag() participant.Tag { return l.tag }

// Buffer returns the (possibly still-growing) buffer backing this reader.
// Safe to call before hang-up for diagnostics, but the content is only
// guaranteed final after Freeze (triggered internally on HungUp).
func (l *LogReader) Buffer() *logbuf.Buffer { return l.buf }

// React implements the bounded-read algorithm from spec.md §4.4: on each
// readable event, read up to the buffer's remaining capacity, looping
// until the syscall would block or returns zero bytes; a hang-up yields
// Unregister so the orchestrator can claim the finalized buffer.
func (l *LogReader) React(r Readiness) (CallbackMessage, error) {
	if r&Readable != 0 {
		if err := l.drain(); err != nil {
			return Nop, err
		}
	}
	if r&HungUp != 0 {
		l.buf.Freeze()
		return Unregister, nil
	}
	return Nop, nil
}

func (l *LogReader) drain() error {
	for {
		n := l.buf.Remaining()
		if n == 0 {
			// At cap — still drain the pipe so the producer never blocks on
			// a full pipe buffer, but discard what we read.
			discarded, err := unix.Read(l.fd, l.scratch[:])
			if err != nil {
				if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
					return nil
				}
				if err == unix.EINTR {
					continue
				}
				return fmt.Errorf("pollio: log reader fd %d: %w", l.fd, err)
			}
			if discarded == 0 {
				return nil
			}
			continue
		}

		readLen := len(l.scratch)
		if n > 0 && n < readLen {
			readLen = n
		}

		got, err := unix.Read(l.fd, l.scratch[:readLen])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("pollio: log reader fd %d: %w", l.fd, err)
		}
		if got == 0 {
			// Zero-byte read without HUP set: treat as drained for now: the
			// next event will carry HUP once the peer actually closes.
			return nil
		}
		l.buf.Append(l.scratch[:got])
	}
}
