package pollio

import (
	"errors"
	"testing"

	"github.com/delta/matchdriver/internal/participant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildProcess_WaitCallsOnce(t *testing.T) {
	calls := 0
	proc := NewChildProcess(participant.PlayerSolo, func() (ExitStatus, error) {
		calls++
		return ExitStatus{Kind: ExitSuccess}, nil
	}, func() {})

	st, err := proc.Wait()
	require.NoError(t, err)
	assert.True(t, st.Success())

	st2, err := proc.Wait()
	require.NoError(t, err)
	assert.True(t, st2.Success())
	assert.Equal(t, 1, calls)
}

func TestChildProcess_KillAfterWaitIsNoop(t *testing.T) {
	killed := 0
	proc := NewChildProcess(participant.Simulator, func() (ExitStatus, error) {
		return ExitStatus{Kind: ExitSuccess}, nil
	}, func() {
		killed++
	})

	_, _ = proc.Wait()
	proc.Kill()
	assert.Equal(t, 0, killed)
}

func TestChildProcess_KillIsIdempotent(t *testing.T) {
	killed := 0
	proc := NewChildProcess(participant.Player1, func() (ExitStatus, error) {
		return ExitStatus{}, errors.New("should not be called")
	}, func() {
		killed++
	})

	proc.Kill()
	proc.Kill()
	assert.Equal(t, 1, killed)
}

func TestExitStatus_Success(t *testing.T) {
	assert.True(t, ExitStatus{Kind: ExitSuccess}.Success())
	assert.False(t, ExitStatus{Kind: ExitFailed, Code: 1}.Success())
	assert.False(t, ExitStatus{Kind: ExitKilledBySignal, Signal: 9}.Success())
}
