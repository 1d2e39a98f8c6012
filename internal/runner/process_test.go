//go:build linux

package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/delta/matchdriver/internal/participant"
	"github.com/delta/matchdriver/internal/pollio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainOne runs a single child to completion against a real pollio
// registry, mirroring internal/match's own drain loop closely enough to
// exercise ProcessRunner's descriptor wiring end to end.
func drainOne(t *testing.T, child *Child) (logText string, status pollio.ExitStatus) {
	t.Helper()

	registry, err := pollio.NewRegistry()
	require.NoError(t, err)
	defer registry.Close()

	exit := pollio.NewExitWatch(child.ExitFD, child.Process)
	require.NoError(t, registry.Register(exit))

	var reader *pollio.LogReader
	if child.LogFD >= 0 {
		reader = pollio.NewLogReader(child.LogFD, participant.PlayerSolo, 0)
		require.NoError(t, registry.Register(reader))
	}

	for !registry.IsEmpty() {
		events, err := registry.Poll(2000, 4)
		require.NoError(t, err)
		require.NotEmpty(t, events, "timed out waiting for child events")

		for _, ev := range events {
			msg, err := registry.Dispatch(ev)
			require.NoError(t, err)

			switch msg {
			case pollio.Unregister:
				_, err := registry.Unregister(ev.FD)
				require.NoError(t, err)
				if reader != nil {
					logText = reader.Buffer().String()
				}
			case pollio.HandleExplicitly:
				_, err := registry.Unregister(ev.FD)
				require.NoError(t, err)
				status, err = child.Process.Wait()
				require.NoError(t, err)
			}
		}
	}

	return logText, status
}

func TestProcessRunner_Spawn_StderrCapture(t *testing.T) {
	dir := t.TempDir()
	stdoutPath := filepath.Join(dir, "stdout.log")
	require.NoError(t, os.WriteFile(stdoutPath, nil, 0o644))

	rn := NewProcessRunner()
	child, err := rn.Spawn(context.Background(), ChildSpec{
		Tag:            participant.PlayerSolo,
		Argv:           []string{"/bin/sh", "-c", "cat >&2"},
		WorkDir:        dir,
		AnonymousStdin: true,
		LogSource:      LogSourceStderr,
		StdoutPath:     stdoutPath,
	})
	require.NoError(t, err)
	require.NotNil(t, child.StdinWrite)

	_, err = child.StdinWrite.Write([]byte("hello from the test\n"))
	require.NoError(t, err)
	require.NoError(t, child.StdinWrite.Close())

	logText, status := drainOne(t, child)
	assert.True(t, status.Success())
	assert.Equal(t, "hello from the test\n", logText)
}

func TestProcessRunner_Spawn_StdoutAsLogSink(t *testing.T) {
	dir := t.TempDir()

	rn := NewProcessRunner()
	child, err := rn.Spawn(context.Background(), ChildSpec{
		Tag:            participant.Simulator,
		Argv:           []string{"/bin/sh", "-c", "echo transcript line"},
		WorkDir:        dir,
		AnonymousStdin: true,
		LogSource:      LogSourceStdout,
	})
	require.NoError(t, err)
	require.NoError(t, child.StdinWrite.Close())

	logText, status := drainOne(t, child)
	assert.True(t, status.Success())
	assert.Equal(t, "transcript line\n", logText)
}

func TestProcessRunner_Spawn_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	stdoutPath := filepath.Join(dir, "stdout.log")
	require.NoError(t, os.WriteFile(stdoutPath, nil, 0o644))

	rn := NewProcessRunner()
	child, err := rn.Spawn(context.Background(), ChildSpec{
		Tag:            participant.PlayerSolo,
		Argv:           []string{"/bin/sh", "-c", "exit 3"},
		WorkDir:        dir,
		AnonymousStdin: true,
		LogSource:      LogSourceStderr,
		StdoutPath:     stdoutPath,
	})
	require.NoError(t, err)
	require.NoError(t, child.StdinWrite.Close())

	_, status := drainOne(t, child)
	assert.False(t, status.Success())
	assert.Equal(t, pollio.ExitFailed, status.Kind)
	assert.Equal(t, 3, status.Code)
}

func TestProcessRunner_Spawn_EmptyArgvFails(t *testing.T) {
	rn := NewProcessRunner()
	_, err := rn.Spawn(context.Background(), ChildSpec{Tag: participant.PlayerSolo})
	assert.Error(t, err)
}
