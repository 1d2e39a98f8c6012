package match

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// fifoEnd holds both ends of one named pipe, opened by the orchestrator
// itself rather than left for the eventual reader/writer child to open
// by path. A plain blocking open(2) on a FIFO blocks until the other end
// is also open — holding both ends here up front means the orchestrator
// can pre-feed a write end before any child exists, and a child's later
// open of the same path (done by the runner, by path) never blocks,
// since a peer stays attached until releaseAfterSpawn runs once every
// child has been spawned.
type fifoEnd struct {
	read  *os.File
	write *os.File
}

// pipeSet is the collection of named pipes (FIFOs) wired for one match,
// keyed by the role name from spec.md §4.3's role-assignment table
// (e.g. "player1-stdin", "simulator-stdout").
type pipeSet struct {
	dir  string
	ends map[string]*fifoEnd
}

// newScratchDir creates a fresh, match-scoped scratch directory under
// base (typically os.TempDir()).
func newScratchDir(base, gameID string) (string, error) {
	dir := filepath.Join(base, "match-"+gameID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("match: create scratch dir %s: %w", dir, err)
	}
	return dir, nil
}

// makePipes creates one FIFO per name in roles under dir and opens both
// of its ends, returning a pipeSet ready for pre-feeding and for handing
// paths to ChildSpec. Each FIFO is created fresh — a leftover FIFO from a
// prior, crashed match run would wedge the open() calls below in an
// unexpected way, so creation fails loudly on a collision rather than
// reusing an existing node.
func makePipes(dir string, roles []string) (*pipeSet, error) {
	ends := make(map[string]*fifoEnd, len(roles))
	ps := &pipeSet{dir: dir, ends: ends}
	for _, name := range roles {
		p := filepath.Join(dir, name)
		if err := unix.Mkfifo(p, 0o600); err != nil {
			ps.closeAll()
			return nil, fmt.Errorf("match: create fifo %s: %w", p, err)
		}
		end, err := openFifoPair(p)
		if err != nil {
			ps.closeAll()
			return nil, fmt.Errorf("match: open fifo %s: %w", p, err)
		}
		ends[name] = end
	}
	return ps, nil
}

// openFifoPair opens both ends of the FIFO at path without blocking: the
// read end is opened O_NONBLOCK first (an open(2) for read never blocks
// regardless of whether a writer exists), which immediately satisfies the
// "a reader exists" condition the subsequent blocking write-end open
// needs in order to return. The read end stays non-blocking — it is
// never actively read from for role pipes, and for the one role the
// orchestrator does read directly (the versus-mode simulator's
// "simulator-stdout"), non-blocking is exactly what pollio.LogReader
// requires.
func openFifoPair(path string) (*fifoEnd, error) {
	r, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open read end: %w", err)
	}
	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("open write end: %w", err)
	}
	return &fifoEnd{read: r, write: w}, nil
}

// path returns the FIFO's filesystem path for role, for ChildSpec fields
// that pass a path to the runner rather than a live descriptor.
func (p *pipeSet) path(role string) string {
	return filepath.Join(p.dir, role)
}

// reader returns the orchestrator-held read end for role. Used directly
// only for "simulator-stdout" in versus mode, where the orchestrator
// registers its own LogReader on this descriptor instead of going
// through a runner-produced Child.LogFD.
func (p *pipeSet) reader(role string) *os.File {
	if e := p.ends[role]; e != nil {
		return e.read
	}
	return nil
}

// writer returns the orchestrator-held write end for role, used to
// pre-feed initial game parameters before any child is spawned.
func (p *pipeSet) writer(role string) *os.File {
	if e := p.ends[role]; e != nil {
		return e.write
	}
	return nil
}

// closeAll closes every orchestrator-held end. Safe to call on a
// partially-populated pipeSet (e.g. from makePipes' own error path).
func (p *pipeSet) closeAll() {
	for _, e := range p.ends {
		e.read.Close()
		e.write.Close()
	}
}

// releaseAfterSpawn closes every orchestrator-held FIFO descriptor that
// has now been handed off to a child by path, once spawnAll has
// returned and every child holds its own open copy. Until this runs,
// the orchestrator's own duplicate read/write ends keep each FIFO's
// open-count above zero forever, so neither EOF (for a child reading
// past another child's close, e.g. the simulator's ExtraReadPaths) nor
// EPOLLHUP (for a registered pollio.LogReader) ever fires — see the doc
// comments on fifoEnd and openFifoPair for why the duplicates existed in
// the first place.
//
// keepReader, if non-empty, names the one role whose read end the
// orchestrator keeps for itself — currently only "simulator-stdout" in
// versus mode, which it registers directly as its own LogReader; that
// role's write end is still closed, since the simulator process holds
// its own independent write descriptor for the same path.
func (p *pipeSet) releaseAfterSpawn(keepReader string) {
	for name, e := range p.ends {
		if name == keepReader {
			e.write.Close()
			e.write = nil
			continue
		}
		e.read.Close()
		e.write.Close()
		delete(p.ends, name)
	}
}

// cleanup closes every orchestrator-held pipe end and removes the
// scratch directory and everything under it (FIFOs, compiled artifacts,
// source files). Best-effort: it returns the removal error, which
// handleSolo/handleVersus discard (their own deferred removal of the
// same scratch directory logs a failure); it never fails the match.
func (p *pipeSet) cleanup() error {
	p.closeAll()
	return os.RemoveAll(p.dir)
}

// soloRoles and versusRoles are the fixed FIFO name sets per spec.md
// §4.3's role-assignment table.
//
// Solo: the simulator's real stdout is its transcript (captured by the
// runner as an anonymous pipe, ChildSpec.LogSource == LogSourceStdout),
// and the two named FIFOs carry the player<->simulator protocol in both
// directions — "player-stdin" is written by the simulator and read by
// the player, "player-stdout" is written by the player and read by the
// simulator (as one of its ExtraReadPaths). The initial game parameters
// are pre-fed into both write ends, matching each side's very first
// input line before either child starts.
//
// Versus: "player1-stdin"/"player2-stdin" are each written by the
// simulator and read by the corresponding player; "player1-stdout"/
// "player2-stdout" are written by each player and read by the simulator
// (passed as ExtraReadPaths, per the role table's "passed as parameters"
// note) — the initial game parameters are pre-fed into these two, same
// as solo's "player-stdout". "simulator-stdout" carries the simulator's
// actual transcript: in versus mode ChildSpec.LogSource is
// LogSourceNone for the simulator (it has no sibling anonymous pipe of
// its own), so the orchestrator reads this FIFO's pre-opened reader end
// directly as that participant's LogReader source.
var (
	soloRoles = []string{
		"player-stdin", "player-stdout",
	}
	versusRoles = []string{
		"player1-stdin", "player2-stdin",
		"player1-stdout", "player2-stdout",
		"simulator-stdout",
	}
)
