//go:build linux

package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/delta/matchdriver/internal/pollio"
	"golang.org/x/sys/unix"
)

// ProcessRunner spawns match participants as plain local OS processes.
// Used for RUNNER_MODE=process and by the orchestrator's own tests; not
// a sandbox — never select this mode against untrusted player code in
// production.
type ProcessRunner struct{}

// NewProcessRunner returns a ready-to-use ProcessRunner.
func NewProcessRunner() *ProcessRunner { return &ProcessRunner{} }

func (r *ProcessRunner) Compile(ctx context.Context, workDir string, code ParticipantCode) error {
	_, err := compile(ctx, workDir, code)
	return err
}

// CompileArgv runs the compile step and additionally returns the
// resulting run command, so ChildSpec.Argv can be filled without a
// second compile pass. The run command uses host paths as they are; the
// Docker runner's CompileArgv compiles on the host too but rewrites those
// paths to the container's bind mount.
func (r *ProcessRunner) CompileArgv(ctx context.Context, workDir string, code ParticipantCode) ([]string, error) {
	return compile(ctx, workDir, code)
}

func (r *ProcessRunner) Spawn(ctx context.Context, spec ChildSpec) (*Child, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("runner: empty argv for %s", spec.Tag)
	}

	var (
		stdin           *os.File
		stdout          *os.File
		stderr          *os.File
		stdinWrite      *os.File
		logRead         *os.File
		logWrite        *os.File
		stdoutIsLogSink = spec.LogSource == LogSourceStdout
	)

	if spec.AnonymousStdin {
		sr, sw, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("runner: create stdin pipe: %w", err)
		}
		stdin, stdinWrite = sr, sw
	} else {
		var err error
		stdin, err = os.OpenFile(spec.StdinPath, os.O_RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("runner: open stdin fifo %s: %w", spec.StdinPath, err)
		}
	}

	if stdoutIsLogSink {
		lr, lw, err := os.Pipe()
		if err != nil {
			stdin.Close()
			closeIfSet(stdinWrite)
			return nil, fmt.Errorf("runner: create stdout-capture pipe: %w", err)
		}
		logRead, logWrite = lr, lw
		stdout = logWrite
	} else {
		var err error
		stdout, err = os.OpenFile(spec.StdoutPath, os.O_WRONLY, 0)
		if err != nil {
			stdin.Close()
			closeIfSet(stdinWrite)
			return nil, fmt.Errorf("runner: open stdout fifo %s: %w", spec.StdoutPath, err)
		}
	}

	if spec.LogSource == LogSourceStderr {
		lr, lw, err := os.Pipe()
		if err != nil {
			stdin.Close()
			stdout.Close()
			closeIfSet(stdinWrite)
			return nil, fmt.Errorf("runner: create stderr pipe: %w", err)
		}
		logRead, logWrite = lr, lw
		stderr = logWrite
	}

	defer stdin.Close()
	if !stdoutIsLogSink {
		defer stdout.Close()
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.ExtraFiles = extraFiles(spec.ExtraReadPaths)

	if err := cmd.Start(); err != nil {
		closeIfSet(logRead)
		closeIfSet(logWrite)
		closeIfSet(stdinWrite)
		return nil, fmt.Errorf("runner: start %s: %w", spec.Tag, err)
	}
	// The parent's copy of whichever stream feeds logWrite must close
	// now — hang-up detection on the log pipe depends on this process
	// holding no lingering write-end copy.
	closeIfSet(logWrite)

	logFD := -1
	if logRead != nil {
		if err := unix.SetNonblock(int(logRead.Fd()), true); err != nil {
			logRead.Close()
			return nil, fmt.Errorf("runner: set log fd nonblocking: %w", err)
		}
		logFD = int(logRead.Fd())
	}

	pidfd, err := unix.PidfdOpen(cmd.Process.Pid, 0)
	if err != nil {
		closeIfSet(logRead)
		return nil, fmt.Errorf("runner: pidfd_open %s (pid %d): %w", spec.Tag, cmd.Process.Pid, err)
	}

	proc := pollio.NewChildProcess(spec.Tag, waitFunc(cmd, pidfd), killFunc(cmd, pidfd))

	return &Child{
		Process:    proc,
		ExitFD:     pidfd,
		LogFD:      logFD,
		StdinWrite: stdinWrite,
	}, nil
}

func closeIfSet(f *os.File) {
	if f != nil {
		f.Close()
	}
}

func extraFiles(paths []string) []*os.File {
	if len(paths) == 0 {
		return nil
	}
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err != nil {
			continue
		}
		files = append(files, f)
	}
	return files
}

// waitFunc reaps the process. The pidfd has already told the registry the
// process exited (so this call returns immediately, never blocking the
// drain loop), but the exit status itself is read the ordinary way via
// cmd.Wait — os/exec already parses the wait4 status into a
// syscall.WaitStatus, which is simpler and more portable than decoding
// the pidfd's siginfo_t by hand.
func waitFunc(cmd *exec.Cmd, pidfd int) func() (pollio.ExitStatus, error) {
	return func() (pollio.ExitStatus, error) {
		defer unix.Close(pidfd)

		err := cmd.Wait()
		ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
		if !ok {
			if err != nil {
				return pollio.ExitStatus{}, fmt.Errorf("runner: wait %s: %w", cmd.Path, err)
			}
			return pollio.ExitStatus{Kind: pollio.ExitSuccess}, nil
		}

		switch {
		case ws.Signaled():
			return pollio.ExitStatus{Kind: pollio.ExitKilledBySignal, Signal: int(ws.Signal())}, nil
		case ws.Exited() && ws.ExitStatus() == 0:
			return pollio.ExitStatus{Kind: pollio.ExitSuccess}, nil
		default:
			return pollio.ExitStatus{Kind: pollio.ExitFailed, Code: ws.ExitStatus()}, nil
		}
	}
}

// killFunc signals the process and reaps it asynchronously. A cascade-kill
// never calls Wait through ChildProcess (its ExitWatch was already
// unregistered, so nothing will dispatch to it again), but the kernel
// still needs a wait4 call to clear the zombie — done here in a detached
// goroutine so Kill itself never blocks the drain loop.
func killFunc(cmd *exec.Cmd, pidfd int) func() {
	return func() {
		if cmd.Process == nil {
			unix.Close(pidfd)
			return
		}
		_ = cmd.Process.Signal(unix.SIGKILL)
		go func() {
			_ = cmd.Wait()
			unix.Close(pidfd)
		}()
	}
}

var _ Runner = (*ProcessRunner)(nil)
