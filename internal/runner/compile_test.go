package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_UnsupportedLanguage(t *testing.T) {
	dir := t.TempDir()
	_, err := compile(context.Background(), dir, ParticipantCode{
		Language:   Language("RUBY"),
		SourceCode: "puts 1",
		FileName:   "main.rb",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestRun_NonZeroExitYieldsCompileError(t *testing.T) {
	dir := t.TempDir()
	err := run(context.Background(), dir, "false")
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
}

func TestRun_Success(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, run(context.Background(), dir, "true"))
}
