// Package match implements the MatchOrchestrator: the per-request
// collaborator that wires a game's pipes, spawns its participants,
// drains their exit/log events on one pollio.Registry, and assembles the
// final wire.GameStatus. One Orchestrator instance is used per worker
// goroutine — see internal/queue's WorkerLoop.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/delta/matchdriver/internal/config"
	"github.com/delta/matchdriver/internal/participant"
	"github.com/delta/matchdriver/internal/pollio"
	"github.com/delta/matchdriver/internal/runner"
	"github.com/delta/matchdriver/internal/transcript"
	"github.com/delta/matchdriver/internal/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	otherPlayerRuntimeMessage = "the other player threw an error"
	otherPlayerCompileMessage = "Other player couldnt compile"
)

// Orchestrator runs one match at a time to completion. Not safe for
// concurrent use by more than one goroutine — spec.md §5's scheduling
// model gives each worker its own Orchestrator.
type Orchestrator struct {
	cfg config.Config
	run runner.Runner
	log zerolog.Logger
}

// New builds an Orchestrator against the given runner and config. log
// should already carry any process-wide fields (e.g. worker index); the
// orchestrator adds a game_id field per call to Handle.
func New(cfg config.Config, rn runner.Runner, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, run: rn, log: log}
}

// Handle dispatches raw to its solo or versus shape and runs the match to
// completion. It always returns a populated wire.GameStatus — per
// spec.md §7's propagation policy, no error from a single match is ever
// allowed to escape to the caller.
func (o *Orchestrator) Handle(ctx context.Context, raw []byte) wire.GameStatus {
	kind, err := wire.Sniff(raw)
	if err != nil {
		return errorStatus("", newCommunicationFailure(participant.PlayerSolo, err), false)
	}

	switch kind {
	case wire.KindSolo:
		var req wire.NormalGameRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorStatus("", newCommunicationFailure(participant.PlayerSolo, err), false)
		}
		if _, err := uuid.Parse(req.GameID); err != nil {
			req.GameID = uuid.New().String()
		}
		return o.handleSolo(ctx, req)

	case wire.KindVersus:
		var req wire.PvPGameRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorStatus("", newCommunicationFailure(participant.Player1, err), true)
		}
		if _, err := uuid.Parse(req.GameID); err != nil {
			req.GameID = uuid.New().String()
		}
		return o.handleVersus(ctx, req)

	default:
		return errorStatus("", newCommunicationFailure(participant.PlayerSolo, err), false)
	}
}

// registeredChild bundles one spawned participant with the entries it
// was registered under, so the drain loop and cascade-kill sweep can
// address it by tag after either entry fires.
type registeredChild struct {
	tag   participant.Tag
	child *runner.Child
	exit  *pollio.ExitWatch
	log   *pollio.LogReader
}

func (o *Orchestrator) handleSolo(ctx context.Context, req wire.NormalGameRequest) wire.GameStatus {
	log := o.log.With().Str("game_id", req.GameID).Logger()

	dir, err := newScratchDir(os.TempDir(), req.GameID)
	if err != nil {
		return errorStatus(req.GameID, newCommunicationFailure(participant.PlayerSolo, err), false)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Msg("scratch dir cleanup failed")
		}
	}()

	playerArgv, err := o.compileOrFail(ctx, dir, participant.PlayerSolo, req.PlayerCode)
	if err != nil {
		var me *MatchError
		errors.As(err, &me)
		return errorStatus(req.GameID, me, false)
	}

	pipes, err := makePipes(dir, soloRoles)
	if err != nil {
		return errorStatus(req.GameID, newCommunicationFailure(participant.PlayerSolo, err), false)
	}
	defer pipes.cleanup()

	if err := preFeedSolo(pipes, req); err != nil {
		return errorStatus(req.GameID, newCommunicationFailure(participant.PlayerSolo, err), false)
	}

	registry, err := pollio.NewRegistry()
	if err != nil {
		return errorStatus(req.GameID, newCommunicationFailure(participant.PlayerSolo, err), false)
	}
	defer registry.Close()

	specs := map[participant.Tag]runner.ChildSpec{
		participant.PlayerSolo: {
			Tag:        participant.PlayerSolo,
			Argv:       playerArgv,
			WorkDir:    dir,
			StdinPath:  pipes.path("player-stdin"),
			StdoutPath: pipes.path("player-stdout"),
			LogSource:  runner.LogSourceStderr,
		},
		participant.Simulator: {
			Tag:            participant.Simulator,
			Argv:           []string{o.cfg.SimulatorPath},
			WorkDir:        dir,
			AnonymousStdin: true,
			LogSource:      runner.LogSourceStdout,
			ExtraReadPaths: []string{pipes.path("player-stdout")},
		},
	}

	children, err := o.spawnAll(ctx, specs)
	if err != nil {
		return errorStatus(req.GameID, newCommunicationFailure(participant.PlayerSolo, err), false)
	}
	defer killRemaining(children)

	// Every child now holds its own descriptor for the FIFOs it was
	// handed by path — the orchestrator's own pre-feed duplicates must
	// go, or neither side ever sees EOF/EPOLLHUP on these pipes again.
	// Solo mode reads no FIFO directly (the simulator's log arrives via
	// an anonymous LogSourceStdout pipe instead), so nothing is kept.
	pipes.releaseAfterSpawn("")

	if sim := children[participant.Simulator]; sim != nil && sim.StdinWrite != nil {
		if err := feedSimulatorParams(sim.StdinWrite, req.Parameters, req.Map); err != nil {
			log.Warn().Err(err).Msg("failed to pre-feed simulator parameters")
		}
		sim.StdinWrite.Close()
	}

	registered, err := registerAll(registry, children, o.cfg.MaxLogSize)
	if err != nil {
		return errorStatus(req.GameID, newCommunicationFailure(participant.PlayerSolo, err), false)
	}

	logs, failure := drain(registry, registered, o.cfg.EpollWaitTimeoutMS, log)
	if failure != nil {
		return errorStatus(req.GameID, failure, false)
	}

	simLog := logs[participant.Simulator]
	playerLog := logs[participant.PlayerSolo]
	combined, summary := transcript.Fold(simLog, playerLog)

	return wire.GameStatus{
		GameID:     req.GameID,
		GameStatus: wire.GameStatusExecuted,
		GameResult: &wire.GameResult{
			DestructionPercentage: summary.DestructionPercentage,
			CoinsUsed:             summary.CoinsUsed,
			HasErrors:             false,
			Log:                   combined,
		},
	}
}

func (o *Orchestrator) handleVersus(ctx context.Context, req wire.PvPGameRequest) wire.GameStatus {
	log := o.log.With().Str("game_id", req.GameID).Logger()

	dir, err := newScratchDir(os.TempDir(), req.GameID)
	if err != nil {
		return errorStatus(req.GameID, newCommunicationFailure(participant.Player1, err), true)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Msg("scratch dir cleanup failed")
		}
	}()

	p1Dir, p2Dir := filepath.Join(dir, "player1"), filepath.Join(dir, "player2")
	if err := os.MkdirAll(p1Dir, 0o755); err == nil {
		err = os.MkdirAll(p2Dir, 0o755)
	} else {
		return errorStatus(req.GameID, newCommunicationFailure(participant.Player1, err), true)
	}

	p1Argv, err1 := o.compileOrFail(ctx, p1Dir, participant.Player1, req.Player1)
	p2Argv, err2 := o.compileOrFail(ctx, p2Dir, participant.Player2, req.Player2)

	switch {
	case err1 != nil && err2 != nil:
		var me1, me2 *MatchError
		errors.As(err1, &me1)
		errors.As(err2, &me2)
		return versusErrorStatus(req.GameID, me1, me2)
	case err1 != nil:
		var me1 *MatchError
		errors.As(err1, &me1)
		me2 := &MatchError{Kind: CompilationFailure, Tag: participant.Player2, Message: otherPlayerCompileMessage}
		return versusErrorStatus(req.GameID, me1, me2)
	case err2 != nil:
		var me2 *MatchError
		errors.As(err2, &me2)
		me1 := &MatchError{Kind: CompilationFailure, Tag: participant.Player1, Message: otherPlayerCompileMessage}
		return versusErrorStatus(req.GameID, me1, me2)
	}

	pipes, err := makePipes(dir, versusRoles)
	if err != nil {
		me := newCommunicationFailure(participant.Player1, err)
		return versusErrorStatus(req.GameID, me, me)
	}
	defer pipes.cleanup()

	if err := preFeedVersus(pipes, req); err != nil {
		me := newCommunicationFailure(participant.Player1, err)
		return versusErrorStatus(req.GameID, me, me)
	}

	registry, err := pollio.NewRegistry()
	if err != nil {
		me := newCommunicationFailure(participant.Player1, err)
		return versusErrorStatus(req.GameID, me, me)
	}
	defer registry.Close()

	specs := map[participant.Tag]runner.ChildSpec{
		participant.Player1: {
			Tag:        participant.Player1,
			Argv:       p1Argv,
			WorkDir:    p1Dir,
			StdinPath:  pipes.path("player1-stdin"),
			StdoutPath: pipes.path("player1-stdout"),
			LogSource:  runner.LogSourceStderr,
		},
		participant.Player2: {
			Tag:        participant.Player2,
			Argv:       p2Argv,
			WorkDir:    p2Dir,
			StdinPath:  pipes.path("player2-stdin"),
			StdoutPath: pipes.path("player2-stdout"),
			LogSource:  runner.LogSourceStderr,
		},
		participant.Simulator: {
			Tag:            participant.Simulator,
			Argv:           []string{o.cfg.SimulatorPath},
			WorkDir:        dir,
			AnonymousStdin: true,
			LogSource:      runner.LogSourceNone,
			StdoutPath:     pipes.path("simulator-stdout"),
			ExtraReadPaths: []string{pipes.path("player1-stdout"), pipes.path("player2-stdout")},
		},
	}

	children, err := o.spawnAll(ctx, specs)
	if err != nil {
		me := newCommunicationFailure(participant.Player1, err)
		return versusErrorStatus(req.GameID, me, me)
	}
	defer killRemaining(children)

	// Release every orchestrator-held pre-feed duplicate now that each
	// child holds its own descriptor, except "simulator-stdout"'s read
	// end — the orchestrator keeps reading that one directly below.
	pipes.releaseAfterSpawn("simulator-stdout")

	if sim := children[participant.Simulator]; sim != nil && sim.StdinWrite != nil {
		if err := feedSimulatorParams(sim.StdinWrite, req.Parameters, ""); err != nil {
			log.Warn().Err(err).Msg("failed to pre-feed simulator parameters")
		}
		sim.StdinWrite.Close()
	}

	registered, err := registerAll(registry, children, o.cfg.MaxLogSize)
	if err != nil {
		me := newCommunicationFailure(participant.Player1, err)
		return versusErrorStatus(req.GameID, me, me)
	}

	// The versus-mode simulator's log never comes through Child.LogFD
	// (ChildSpec.LogSource was LogSourceNone) — the orchestrator already
	// holds the "simulator-stdout" FIFO's read end itself and registers
	// it directly as that participant's LogReader.
	simReader := pollio.NewLogReader(int(pipes.reader("simulator-stdout").Fd()), participant.Simulator, 0)
	if err := registry.Register(simReader); err != nil {
		me := newCommunicationFailure(participant.Player1, err)
		return versusErrorStatus(req.GameID, me, me)
	}
	registered[participant.Simulator].log = simReader

	logs, failure := drain(registry, registered, o.cfg.EpollWaitTimeoutMS, log)
	if failure != nil {
		return failedVersusStatus(req.GameID, failure)
	}

	// Fold walks the simulator log's single DELIMITER-separated turn
	// sequence against both player logs in (player1, player2) order and
	// returns one shared combined transcript — versus mode shows both
	// sides the same combat log, so it's attached to both results.
	combined, summary := transcript.Fold(logs[participant.Simulator], logs[participant.Player1], logs[participant.Player2])

	return wire.GameStatus{
		GameID:     req.GameID,
		GameStatus: wire.GameStatusExecuted,
		GameResultPlayer1: &wire.GameResult{
			DestructionPercentage: summary.DestructionPercentage,
			CoinsUsed:             summary.CoinsUsed,
			HasErrors:             false,
			Log:                   combined,
		},
		GameResultPlayer2: &wire.GameResult{
			DestructionPercentage: summary.DestructionPercentage,
			CoinsUsed:             summary.CoinsUsed,
			HasErrors:             false,
			Log:                   combined,
		},
	}
}

// compileOrFail runs the runner's compile step and, on failure, attaches
// tag to the returned *runner.CompileError before wrapping it as a
// *MatchError — runner.CompileError itself carries no tag (the runner
// package doesn't know which participant it's compiling for at that
// layer).
func (o *Orchestrator) compileOrFail(ctx context.Context, workDir string, tag participant.Tag, code wire.PlayerCode) ([]string, error) {
	argv, err := o.run.CompileArgv(ctx, workDir, runner.ParticipantCode{
		Language:   runner.Language(code.Language),
		SourceCode: code.SourceCode,
		FileName:   compileFileName(tag),
	})
	if err != nil {
		var ce *runner.CompileError
		if errors.As(err, &ce) {
			ce.Tag = tag
			return nil, newCompilationFailure(tag, ce.Stderr)
		}
		return nil, newCommunicationFailure(tag, err)
	}
	return argv, nil
}

func compileFileName(tag participant.Tag) string {
	switch tag {
	case participant.Player1:
		return "player1"
	case participant.Player2:
		return "player2"
	default:
		return "run"
	}
}

// spawnAll spawns every participant in specs concurrently. The
// orchestrator still holds both ends of every FIFO while this runs (see
// pipes.go's openFifoPair), so no by-path open(2) inside runner.Spawn
// waits for a peer. If any spawn fails, the children that did start are
// killed and the first error is returned.
func (o *Orchestrator) spawnAll(ctx context.Context, specs map[participant.Tag]runner.ChildSpec) (map[participant.Tag]*runner.Child, error) {
	type result struct {
		tag   participant.Tag
		child *runner.Child
		err   error
	}

	out := make(chan result, len(specs))
	var wg sync.WaitGroup
	for tag, spec := range specs {
		wg.Add(1)
		go func(tag participant.Tag, spec runner.ChildSpec) {
			defer wg.Done()
			child, err := o.run.Spawn(ctx, spec)
			out <- result{tag: tag, child: child, err: err}
		}(tag, spec)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	children := make(map[participant.Tag]*runner.Child, len(specs))
	var firstErr error
	for r := range out {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		children[r.tag] = r.child
	}
	if firstErr != nil {
		for _, c := range children {
			c.Process.Kill()
		}
		return nil, firstErr
	}
	return children, nil
}

func registerAll(registry *pollio.Registry, children map[participant.Tag]*runner.Child, maxLogSize int) (map[participant.Tag]*registeredChild, error) {
	out := make(map[participant.Tag]*registeredChild, len(children))
	for tag, child := range children {
		exit := pollio.NewExitWatch(child.ExitFD, child.Process)
		if err := registry.Register(exit); err != nil {
			return nil, fmt.Errorf("match: register exit watch for %s: %w", tag, err)
		}

		rc := &registeredChild{tag: tag, child: child, exit: exit}

		if child.LogFD >= 0 {
			cap := maxLogSize
			if tag == participant.Simulator {
				cap = 0
			}
			reader := pollio.NewLogReader(child.LogFD, tag, cap)
			if err := registry.Register(reader); err != nil {
				return nil, fmt.Errorf("match: register log reader for %s: %w", tag, err)
			}
			rc.log = reader
		}

		out[tag] = rc
	}
	return out, nil
}

// drain runs the event loop from spec.md §4.3 step 6 until the registry
// empties, applying the failure-cascade policy on the first non-success
// exit. It returns each tag's finalized log text together with the first
// classified failure, or nil if there was none. A non-success exit kills
// the remaining processes and the drain continues until the registry
// empties; a dispatch error also kills the remaining processes but ends
// the drain at once, leaving any unfinished log readers registered.
func drain(registry *pollio.Registry, registered map[participant.Tag]*registeredChild, timeoutMS int, log zerolog.Logger) (map[participant.Tag]string, *MatchError) {
	logs := make(map[participant.Tag]string, len(registered))
	cascaded := false
	var failure *MatchError

	byFD := func(fd int) *registeredChild {
		for _, rc := range registered {
			if rc.exit != nil && rc.exit.FD() == fd {
				return rc
			}
			if rc.log != nil && rc.log.FD() == fd {
				return rc
			}
		}
		return nil
	}

	for !registry.IsEmpty() {
		events, err := registry.Poll(timeoutMS, len(registered)*2)
		if err != nil {
			return logs, newCommunicationFailure(participant.PlayerSolo, err)
		}

		for _, ev := range events {
			rc := byFD(ev.FD)
			msg, err := registry.Dispatch(ev)
			if err != nil {
				if failure == nil {
					failure = newCommunicationFailure(tagOf(rc), err)
				}
				cascadeKill(registry)
				return logs, failure
			}

			switch msg {
			case pollio.Nop:
				// more bytes buffered; stay registered.

			case pollio.Unregister:
				entry, err := registry.Unregister(ev.FD)
				if err != nil {
					continue
				}
				if lr, ok := entry.(*pollio.LogReader); ok {
					logs[lr.Tag()] = lr.Buffer().String()
				}

			case pollio.HandleExplicitly:
				entry, err := registry.Unregister(ev.FD)
				if err != nil {
					continue
				}
				ew, ok := entry.(*pollio.ExitWatch)
				if !ok {
					continue
				}
				status, err := ew.Process.Wait()
				if err != nil {
					log.Warn().Err(err).Str("tag", ew.Tag().String()).Msg("wait failed")
				}

				if !status.Success() && !cascaded {
					cascaded = true
					if failure == nil {
						failure = newExitFailure(status, ew.Tag(), logs[ew.Tag()])
					}
					cascadeKill(registry)
				}
			}
		}
	}

	return logs, failure
}

func tagOf(rc *registeredChild) participant.Tag {
	if rc == nil {
		return participant.PlayerSolo
	}
	return rc.tag
}

// newExitFailure maps a non-success ExitStatus to the taxonomy kind per
// spec.md §4.3's failure-cascade policy table: a signal kill or an exit
// code of 137 (the sandbox's own SIGKILL-on-timeout convention) is a
// Timeout, any other nonzero exit is a RuntimeFailure carrying the
// participant's own captured log as its diagnostic.
func newExitFailure(status pollio.ExitStatus, tag participant.Tag, capturedLog string) *MatchError {
	switch status.Kind {
	case pollio.ExitKilledBySignal:
		return newTimeout(tag)
	case pollio.ExitFailed:
		if status.Code == 137 {
			return newTimeout(tag)
		}
		return newRuntimeFailure(tag, capturedLog)
	default:
		return newRuntimeFailure(tag, capturedLog)
	}
}

// cascadeKill enumerates every remaining ExitWatch in the registry,
// unregisters it, and kills its process. LogReader entries are left
// alone — their hang-up fires naturally as the killed processes exit,
// and the drain loop keeps collecting their partial buffers.
func cascadeKill(registry *pollio.Registry) {
	for _, entry := range registry.Entries() {
		ew, ok := entry.(*pollio.ExitWatch)
		if !ok {
			continue
		}
		if _, err := registry.Unregister(ew.FD()); err != nil {
			continue
		}
		ew.Process.Kill()
	}
}

// killRemaining is the defer-time backstop: if handleSolo/handleVersus
// returns early (a communication failure before the drain loop ever
// ran), every spawned child must still be killed so none are leaked.
// A no-op for any child already reaped by the drain loop, since
// ChildProcess.Kill is idempotent after Wait.
func killRemaining(children map[participant.Tag]*runner.Child) {
	for _, c := range children {
		c.Process.Kill()
	}
}

func preFeedSolo(pipes *pipeSet, req wire.NormalGameRequest) error {
	for _, role := range []string{"player-stdin", "player-stdout"} {
		w := pipes.writer(role)
		if err := wire.WriteInitialParameters(w, req.Parameters); err != nil {
			return err
		}
		if err := wire.WriteMap(w, req.Map); err != nil {
			return err
		}
	}
	return nil
}

func preFeedVersus(pipes *pipeSet, req wire.PvPGameRequest) error {
	for _, role := range []string{"player1-stdout", "player2-stdout"} {
		w := pipes.writer(role)
		if err := wire.WriteInitialParameters(w, req.Parameters); err != nil {
			return err
		}
	}
	return nil
}

// feedSimulatorParams writes the same initial-parameters block (plus,
// for solo, the map) into the simulator's own anonymous stdin pipe — the
// one channel the simulator reads that the orchestrator feeds directly
// rather than via a named FIFO, since AnonymousStdin is set for every
// simulator ChildSpec regardless of mode.
func feedSimulatorParams(w *os.File, params wire.GameParameters, rawMap string) error {
	if err := wire.WriteInitialParameters(w, params); err != nil {
		return err
	}
	if rawMap != "" {
		return wire.WriteMap(w, rawMap)
	}
	return nil
}

func errorStatus(gameID string, e *MatchError, versus bool) wire.GameStatus {
	if e == nil {
		e = &MatchError{Kind: Unidentified, Tag: participant.PlayerSolo, Message: "unknown failure"}
	}
	result := &wire.GameResult{HasErrors: true, Log: formatLog(e)}
	if versus {
		return wire.GameStatus{
			GameID:            gameID,
			GameStatus:        wire.GameStatusExecuteError,
			GameResultPlayer1: result,
			GameResultPlayer2: result,
		}
	}
	return wire.GameStatus{
		GameID:     gameID,
		GameStatus: wire.GameStatusExecuteError,
		GameResult: result,
	}
}

// versusErrorStatus builds a terminal EXECUTE_ERROR status carrying both
// players' per-participant diagnostics, used for the pre-spawn
// compilation-failure paths where each side's message differs (spec.md
// §8 scenario 4: the failing side gets the compiler's stderr, the other
// gets the fixed otherPlayerCompileMessage).
func versusErrorStatus(gameID string, me1, me2 *MatchError) wire.GameStatus {
	if me1 == nil {
		me1 = &MatchError{Kind: Unidentified, Tag: participant.Player1, Message: "unknown failure"}
	}
	if me2 == nil {
		me2 = &MatchError{Kind: Unidentified, Tag: participant.Player2, Message: "unknown failure"}
	}
	return wire.GameStatus{
		GameID:            gameID,
		GameStatus:        wire.GameStatusExecuteError,
		GameResultPlayer1: &wire.GameResult{HasErrors: true, Log: formatLog(me1)},
		GameResultPlayer2: &wire.GameResult{HasErrors: true, Log: formatLog(me2)},
	}
}

// failedVersusStatus builds the mid-match failure terminal status per
// spec.md §8 scenario 5: the failing participant's own diagnostic is
// reported under its tag, the surviving sibling player gets the fixed
// otherPlayerRuntimeMessage. A simulator-only failure is reported
// under both players as a shared runtime error against the runner,
// matching the failure-cascade policy's closing paragraph.
func failedVersusStatus(gameID string, failure *MatchError) wire.GameStatus {
	p1 := &wire.GameResult{HasErrors: true}
	p2 := &wire.GameResult{HasErrors: true}

	switch failure.Tag {
	case participant.Player1:
		p1.Log = formatLog(failure)
		p2.Log = otherPlayerRuntimeMessage
	case participant.Player2:
		p2.Log = formatLog(failure)
		p1.Log = otherPlayerRuntimeMessage
	default:
		p1.Log = formatLog(failure)
		p2.Log = formatLog(failure)
	}

	return wire.GameStatus{
		GameID:            gameID,
		GameStatus:        wire.GameStatusExecuteError,
		GameResultPlayer1: p1,
		GameResultPlayer2: p2,
	}
}
