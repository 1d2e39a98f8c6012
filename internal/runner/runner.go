// Package runner provides the two concrete collaborators that turn a
// player's submitted source or the simulator binary into a running child
// process wired to the pipes the orchestrator prepared, plus the
// pre-spawn compile step spec.md §7 calls for.
//
// Two implementations are provided: ProcessRunner (plain local
// processes, used by RUNNER_MODE=process and by tests) and DockerRunner
// (RUNNER_MODE=docker, the production mode — untrusted player code must
// never execute outside the sandbox).
package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/delta/matchdriver/internal/participant"
	"github.com/delta/matchdriver/internal/pollio"
)

// LogSource selects which of a child's streams (if any) the runner
// itself captures into Child.LogFD.
type LogSource int

const (
	// LogSourceStderr captures the child's stderr into Child.LogFD —
	// every player, in both solo and versus mode: stdout is the
	// player-protocol stream (FIFO-wired), stderr is diagnostics.
	LogSourceStderr LogSource = iota

	// LogSourceStdout captures the child's own stdout into Child.LogFD
	// via an anonymous pipe — the solo-mode simulator, whose transcript
	// is its stdout and which has no sibling process that needs to open
	// that stream by path.
	LogSourceStdout

	// LogSourceNone means the runner captures nothing: Child.LogFD is
	// -1 and the caller is responsible for reading the registered log
	// source itself — the versus-mode simulator, whose stdout is
	// instead written to a named FIFO (the role table's
	// "simulator-stdout") whose read end the orchestrator holds and
	// registers directly.
	LogSourceNone
)

// ChildSpec is everything a Runner needs to start one child process.
type ChildSpec struct {
	Tag participant.Tag

	// Argv is the command to execute: for a compiled/interpreted player
	// submission this is the language's run command (e.g. "./a.out",
	// "java Main", "python3 main.py"); for the simulator it's the fixed
	// simulator binary invocation.
	Argv []string

	// WorkDir is the scratch directory containing the player's build
	// artifacts (or the simulator's working directory).
	WorkDir string

	// StdinPath / StdoutPath are the FIFO paths the child reads its
	// input from / writes its output to, opened by the runner itself so
	// the parent-side descriptor can be closed immediately after spawn —
	// see spec.md §9's descriptor-ownership design note. StdinPath is
	// ignored when AnonymousStdin is true; StdoutPath is ignored when
	// LogSource is LogSourceStdout.
	StdinPath  string
	StdoutPath string

	// AnonymousStdin is set for the simulator in both modes: rather
	// than a named FIFO, its stdin is an ordinary anonymous pipe held
	// by the orchestrator itself, since only the driver feeds the
	// simulator's initial parameters — no sibling child opens that
	// stream by path. When set, Spawn returns the parent-side write end
	// as Child.StdinWrite.
	AnonymousStdin bool

	// LogSource selects how Child.LogFD (if any) is produced.
	LogSource LogSource

	// ExtraReadPaths, for the simulator, carries the paths of the
	// players' stdout FIFOs (already created by the orchestrator): one in
	// solo mode, two in versus mode, so the simulator can open and select
	// across them. Empty for player children.
	ExtraReadPaths []string
}

// Child is a spawned, wired process ready for registration.
type Child struct {
	Process *pollio.ChildProcess
	ExitFD  int

	// LogFD is the descriptor the orchestrator registers as this
	// child's LogReader source, or -1 when ChildSpec.LogSource was
	// LogSourceNone (the caller owns reading that child's log stream
	// itself — see LogSourceNone's doc comment).
	LogFD int

	// StdinWrite is the parent-side write end of the child's stdin,
	// non-nil only when ChildSpec.AnonymousStdin was set. The
	// orchestrator pre-feeds the initial game parameters through it,
	// then closes it.
	StdinWrite *os.File
}

// Runner spawns and pre-validates match participants.
type Runner interface {
	// Compile runs the language-appropriate pre-spawn compile/syntax
	// check. A failing compiler is reported as a *CompileError; failing
	// to write the source file or an unsupported language is reported as
	// an ordinary error.
	Compile(ctx context.Context, workDir string, code ParticipantCode) error

	// CompileArgv is Compile plus the resulting run command, so the
	// orchestrator can fill ChildSpec.Argv without a second compile
	// pass. Its errors are the same as Compile's.
	CompileArgv(ctx context.Context, workDir string, code ParticipantCode) ([]string, error)

	// Spawn starts one child process per spec. The returned Child is
	// already registrable: ExitFD and LogFD are open, non-blocking, and
	// owned solely by the returned Child (the runner keeps no copy).
	Spawn(ctx context.Context, spec ChildSpec) (*Child, error)
}

// ParticipantCode is a player's submission plus the scratch-relative
// file name the compile step should write it to.
type ParticipantCode struct {
	Language   Language
	SourceCode string
	FileName   string
}

// Language mirrors wire.Language without importing internal/wire, to
// keep internal/runner free of a dependency on the request codec.
type Language string

const (
	LanguageCPP    Language = "CPP"
	LanguageJava   Language = "JAVA"
	LanguagePython Language = "PYTHON"
)

// CompileError carries the failing compiler's stderr, attributed to the
// tag that failed compilation.
type CompileError struct {
	Tag    participant.Tag
	Stderr string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("runner: %s failed to compile", e.Tag)
}
