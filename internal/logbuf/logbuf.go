// Package logbuf provides a bounded, append-only byte buffer used to
// collect a child process's stderr while its log-output descriptor is
// still registered in the event loop.
package logbuf

// Buffer is a bounded append-only byte accumulator. Once Freeze is called
// (on hang-up) its content is immutable; Append after Freeze is a no-op.
//
// The cap is decided once at construction from the owning participant's
// tag: player-tagged buffers get the configured byte cap, simulator-tagged
// buffers get an effectively unbounded one (simulator output is trusted
// and must be preserved in full).
type Buffer struct {
	cap    int // 0 means unbounded
	data   []byte
	frozen bool
}

// New returns a Buffer capped at n bytes. n <= 0 means unbounded.
func New(n int) *Buffer {
	return &Buffer{cap: n}
}

// Append adds up to the buffer's remaining capacity from p, discarding any
// excess. It never blocks and never errors — oversize input is silently
// truncated, per the bounded-read algorithm in spec.md §4.4.
func (b *Buffer) Append(p []byte) {
	if b.frozen || len(p) == 0 {
		return
	}
	if b.cap <= 0 {
		b.data = append(b.data, p...)
		return
	}
	remaining := b.cap - len(b.data)
	if remaining <= 0 {
		return
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	b.data = append(b.data, p...)
}

// Remaining returns how many more bytes Append will accept. Callers use
// this to size their read buffer so a single read syscall never fetches
// more than can be kept. A non-positive return with cap <= 0 means
// unbounded: callers should use a fixed-size scratch buffer instead.
func (b *Buffer) Remaining() int {
	if b.cap <= 0 {
		return -1
	}
	return b.cap - len(b.data)
}

// Freeze marks the buffer immutable. Called exactly once, when the
// producing descriptor hangs up.
func (b *Buffer) Freeze() {
	b.frozen = true
}

// Frozen reports whether Freeze has been called.
func (b *Buffer) Frozen() bool {
	return b.frozen
}

// String returns the buffered content so far.
func (b *Buffer) String() string {
	return string(b.data)
}

// Len returns the number of bytes currently buffered.
func (b *Buffer) Len() int {
	return len(b.data)
}
