package match

import (
	"os"
	"testing"

	"github.com/delta/matchdriver/internal/participant"
	"github.com/delta/matchdriver/internal/pollio"
	"github.com/delta/matchdriver/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFileName(t *testing.T) {
	assert.Equal(t, "player1", compileFileName(participant.Player1))
	assert.Equal(t, "player2", compileFileName(participant.Player2))
	assert.Equal(t, "run", compileFileName(participant.PlayerSolo))
	assert.Equal(t, "run", compileFileName(participant.Simulator))
}

func TestTagOf(t *testing.T) {
	assert.Equal(t, participant.PlayerSolo, tagOf(nil))
	assert.Equal(t, participant.Player2, tagOf(&registeredChild{tag: participant.Player2}))
}

func TestNewExitFailure(t *testing.T) {
	t.Run("signal kill is a timeout", func(t *testing.T) {
		me := newExitFailure(pollio.ExitStatus{Kind: pollio.ExitKilledBySignal, Signal: 9}, participant.Player1, "")
		assert.Equal(t, Timeout, me.Kind)
		assert.Equal(t, participant.Player1, me.Tag)
	})

	t.Run("exit code 137 is a timeout", func(t *testing.T) {
		me := newExitFailure(pollio.ExitStatus{Kind: pollio.ExitFailed, Code: 137}, participant.Player2, "")
		assert.Equal(t, Timeout, me.Kind)
	})

	t.Run("other nonzero exit is a runtime failure carrying the log", func(t *testing.T) {
		me := newExitFailure(pollio.ExitStatus{Kind: pollio.ExitFailed, Code: 1}, participant.Player1, "stack trace")
		assert.Equal(t, RuntimeFailure, me.Kind)
		assert.Contains(t, me.Message, "stack trace")
	})
}

func TestErrorStatus_Solo(t *testing.T) {
	status := errorStatus("g1", newTimeout(participant.PlayerSolo), false)
	assert.Equal(t, "g1", status.GameID)
	require.NotNil(t, status.GameResult)
	assert.True(t, status.GameResult.HasErrors)
	assert.Nil(t, status.GameResultPlayer1)
}

func TestErrorStatus_Versus(t *testing.T) {
	status := errorStatus("g2", newTimeout(participant.Player1), true)
	require.NotNil(t, status.GameResultPlayer1)
	assert.Nil(t, status.GameResult)
}

func TestErrorStatus_NilFailureFallsBackToUnidentified(t *testing.T) {
	status := errorStatus("g3", nil, false)
	require.NotNil(t, status.GameResult)
	assert.Contains(t, status.GameResult.Log, "unknown failure")
}

func TestVersusErrorStatus_BothSidesPopulated(t *testing.T) {
	me1 := newCompilationFailure(participant.Player1, "bad syntax")
	me2 := &MatchError{Kind: CompilationFailure, Tag: participant.Player2, Message: otherPlayerCompileMessage}
	status := versusErrorStatus("g4", me1, me2)
	assert.Contains(t, status.GameResultPlayer1.Log, "bad syntax")
	assert.Contains(t, status.GameResultPlayer2.Log, otherPlayerCompileMessage)
}

func TestFailedVersusStatus_FailingSideGetsDiagnosticOtherGetsFixedMessage(t *testing.T) {
	failure := newRuntimeFailure(participant.Player1, "boom")
	status := failedVersusStatus("g5", failure)
	assert.Contains(t, status.GameResultPlayer1.Log, "boom")
	assert.Equal(t, otherPlayerRuntimeMessage, status.GameResultPlayer2.Log)
}

func TestFailedVersusStatus_SimulatorFailureReportedToBoth(t *testing.T) {
	failure := newRuntimeFailure(participant.Simulator, "runner crashed")
	status := failedVersusStatus("g6", failure)
	assert.Contains(t, status.GameResultPlayer1.Log, "runner crashed")
	assert.Contains(t, status.GameResultPlayer2.Log, "runner crashed")
}

func TestKillRemaining_KillsEveryChild(t *testing.T) {
	killed := make(map[participant.Tag]bool)
	mk := func(tag participant.Tag) *runner.Child {
		return &runner.Child{
			Process: pollio.NewChildProcess(tag, func() (pollio.ExitStatus, error) {
				return pollio.ExitStatus{Kind: pollio.ExitSuccess}, nil
			}, func() { killed[tag] = true }),
			ExitFD: -1,
			LogFD:  -1,
		}
	}
	children := map[participant.Tag]*runner.Child{
		participant.Player1:  mk(participant.Player1),
		participant.Simulator: mk(participant.Simulator),
	}
	killRemaining(children)
	assert.True(t, killed[participant.Player1])
	assert.True(t, killed[participant.Simulator])
}

func TestCascadeKill_UnregistersAndKillsOnlyExitWatches(t *testing.T) {
	registry, err := pollio.NewRegistry()
	require.NoError(t, err)
	defer registry.Close()

	pr1, pw1, err := os.Pipe()
	require.NoError(t, err)
	defer pr1.Close()
	defer pw1.Close()

	killed := false
	proc := pollio.NewChildProcess(participant.Player1, func() (pollio.ExitStatus, error) {
		return pollio.ExitStatus{Kind: pollio.ExitSuccess}, nil
	}, func() { killed = true })
	watch := pollio.NewExitWatch(int(pr1.Fd()), proc)
	require.NoError(t, registry.Register(watch))

	pr2, pw2, err := os.Pipe()
	require.NoError(t, err)
	defer pr2.Close()
	defer pw2.Close()
	reader := pollio.NewLogReader(int(pr2.Fd()), participant.Player1, 0)
	require.NoError(t, registry.Register(reader))

	cascadeKill(registry)

	assert.True(t, killed)
	assert.True(t, registry.IsEmpty() == false, "log reader should remain registered")
}
