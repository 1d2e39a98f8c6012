//go:build linux

package pollio

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeEntry struct {
	fd int
}

func (f *fakeEntry) FD() int { return f.fd }
func (f *fakeEntry) React(Readiness) (CallbackMessage, error) {
	return Nop, nil
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	defer r.Close()

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	entry := &fakeEntry{fd: int(pr.Fd())}
	require.NoError(t, r.Register(entry))
	assert.False(t, r.IsEmpty())

	err = r.Register(entry)
	assert.ErrorIs(t, err, ErrFDAlreadyRegistered)

	removed, err := r.Unregister(entry.FD())
	require.NoError(t, err)
	assert.Same(t, entry, removed)
	assert.True(t, r.IsEmpty())
}

func TestRegistry_UnregisterUnknownFD(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Unregister(12345)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistry_PollObservesReadablePipe(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	defer r.Close()

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()
	require.NoError(t, unix.SetNonblock(int(pr.Fd()), true))

	entry := &fakeEntry{fd: int(pr.Fd())}
	require.NoError(t, r.Register(entry))

	_, err = pw.Write([]byte("hello"))
	require.NoError(t, err)

	events, err := r.Poll(1000, 4)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entry.FD(), events[0].FD)
	assert.NotZero(t, events[0].Readiness&Readable)
}

func TestRegistry_PollTimesOutWithNoEvents(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	defer r.Close()

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	require.NoError(t, r.Register(&fakeEntry{fd: int(pr.Fd())}))

	events, err := r.Poll(50, 4)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRegistry_DispatchUnknownFDIsNop(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	defer r.Close()

	msg, err := r.Dispatch(Event{FD: 99999, Readiness: Readable})
	require.NoError(t, err)
	assert.Equal(t, Nop, msg)
}

func TestRegistry_CloseIsIdempotent(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}
