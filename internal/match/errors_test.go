package match

import (
	"errors"
	"testing"

	"github.com/delta/matchdriver/internal/participant"
	"github.com/stretchr/testify/assert"
)

func TestKind_String(t *testing.T) {
	assert.Equal(t, "Compilation Error!", CompilationFailure.String())
	assert.Equal(t, "Runtime Error!", RuntimeFailure.String())
	assert.Equal(t, "Timeout Error!", Timeout.String())
	assert.Equal(t, "Communication Error!", CommunicationFailure.String())
	assert.Equal(t, "Unidentified Error!", Unidentified.String())
}

func TestFormatLog_PrefixesEveryLine(t *testing.T) {
	e := newRuntimeFailure(participant.Player1, "segfault\nat line 12")
	out := formatLog(e)

	assert.Contains(t, out, "ERRORS, ERROR TYPE: Runtime Error!")
	assert.Contains(t, out, "ERRORS, ERROR LOG:")
	assert.Contains(t, out, "ERRORS, segfault")
	assert.Contains(t, out, "ERRORS, at line 12")
}

func TestNewCommunicationFailure_WrapsCause(t *testing.T) {
	cause := errors.New("boom")
	e := newCommunicationFailure(participant.Simulator, cause)
	assert.Equal(t, CommunicationFailure, e.Kind)
	assert.Equal(t, "boom", e.Message)
}

func TestMatchError_Error(t *testing.T) {
	e := newTimeout(participant.PlayerSolo)
	assert.Contains(t, e.Error(), "player_solo")
	assert.Contains(t, e.Error(), "Timeout Error!")
}
