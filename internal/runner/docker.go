package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/delta/matchdriver/internal/pollio"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"golang.org/x/sys/unix"
)

const containerWorkDir = "/match"

// DockerRunner spawns match participants as throwaway Docker containers,
// one per child, with the scratch directory bind-mounted so the
// container can read/write the orchestrator's FIFOs by path. This is the
// production runner: untrusted player code must never run outside the
// sandbox.
type DockerRunner struct {
	cli   *client.Client
	Image map[Language]string
}

// NewDockerRunner builds a DockerRunner against the daemon reachable at
// host ("" defers to the environment / default socket, matching the
// teacher pack's own socket-discovery convention).
func NewDockerRunner(host string) (*DockerRunner, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("runner: docker client: %w", err)
	}
	return &DockerRunner{
		cli: cli,
		Image: map[Language]string{
			LanguageCPP:    "matchdriver-runner-cpp:latest",
			LanguageJava:   "matchdriver-runner-java:latest",
			LanguagePython: "matchdriver-runner-python:latest",
		},
	}, nil
}

// Compile runs the same pre-spawn check as ProcessRunner: the compile
// step is cheap enough, and surfacing a compiler error before a
// container is even created keeps the common (broken submission) path
// fast and avoids spinning up a container just to fail inside it.
func (r *DockerRunner) Compile(ctx context.Context, workDir string, code ParticipantCode) error {
	_, err := compile(ctx, workDir, code)
	return err
}

// CompileArgv runs the host-side compile step (see Compile's comment)
// and returns the run command the container entrypoint executes. compile
// returns a run command built from host-side paths (it has no notion of
// the container bind-mount); translate every workDir-rooted argument to
// its containerWorkDir equivalent before handing it to Spawn.
func (r *DockerRunner) CompileArgv(ctx context.Context, workDir string, code ParticipantCode) ([]string, error) {
	argv, err := compile(ctx, workDir, code)
	if err != nil {
		return nil, err
	}
	translated := make([]string, len(argv))
	for i, a := range argv {
		translated[i] = containerPath(workDir, a)
	}
	return translated, nil
}

func (r *DockerRunner) Spawn(ctx context.Context, spec ChildSpec) (*Child, error) {
	image, ok := r.Image[languageFromArgv(spec.Argv)]
	if !ok {
		image = r.Image[LanguageCPP]
	}

	stdoutIsLogSink := spec.LogSource == LogSourceStdout

	cmd := spec.Argv
	needsStdinRedirect := !spec.AnonymousStdin
	needsStdoutRedirect := !stdoutIsLogSink
	if needsStdinRedirect || needsStdoutRedirect {
		// The participant binary itself knows nothing about FIFOs: wrap
		// it in a shell that redirects stdin/stdout to the bind-mounted
		// paths, the split ProcessRunner gets for free from os/exec's
		// Stdin/Stdout fields.
		redirect := ""
		if needsStdinRedirect {
			redirect += " < " + containerPath(spec.WorkDir, spec.StdinPath)
		}
		if needsStdoutRedirect {
			redirect += " > " + containerPath(spec.WorkDir, spec.StdoutPath)
		}
		cmd = []string{"/bin/sh", "-c", "exec " + shellJoin(spec.Argv) + redirect}
	}

	resp, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:       image,
		Cmd:         cmd,
		WorkingDir:  containerWorkDir,
		Tty:         false,
		AttachStdin: spec.AnonymousStdin,
		OpenStdin:   spec.AnonymousStdin,
		StdinOnce:   spec.AnonymousStdin,
	}, &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:%s", spec.WorkDir, containerWorkDir)},
	}, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("runner: create container for %s: %w", spec.Tag, err)
	}

	var stdinWrite *os.File
	if spec.AnonymousStdin {
		hijacked, err := r.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{Stream: true, Stdin: true})
		if err != nil {
			return nil, fmt.Errorf("runner: attach stdin for %s: %w", spec.Tag, err)
		}
		// hijacked.Conn is a net.Conn, not an *os.File; bridge it through
		// an os.Pipe so the orchestrator's pre-feed call (which writes
		// to an *os.File, matching ProcessRunner's Child.StdinWrite)
		// needs no Docker-specific code path.
		pr, pw, perr := os.Pipe()
		if perr != nil {
			hijacked.Close()
			return nil, fmt.Errorf("runner: create stdin bridge pipe: %w", perr)
		}
		go func() {
			defer hijacked.Close()
			_, _ = io.Copy(hijacked.Conn, pr)
		}()
		stdinWrite = pw
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("runner: start container for %s: %w", spec.Tag, err)
	}

	logFD := -1
	var logRead *os.File
	if spec.LogSource != LogSourceNone {
		lr, logWrite, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("runner: create log pipe: %w", err)
		}
		logRead = lr
		if err := unix.SetNonblock(int(logRead.Fd()), true); err != nil {
			logRead.Close()
			logWrite.Close()
			return nil, fmt.Errorf("runner: set log fd nonblocking: %w", err)
		}
		go r.copyContainerLog(context.Background(), resp.ID, logWrite, spec.LogSource)
		logFD = int(logRead.Fd())
	}

	exitRead, exitWrite, err := os.Pipe()
	if err != nil {
		logRead.Close()
		return nil, fmt.Errorf("runner: create exit-notify pipe: %w", err)
	}
	if err := unix.SetNonblock(int(exitRead.Fd()), true); err != nil {
		exitRead.Close()
		exitWrite.Close()
		logRead.Close()
		return nil, fmt.Errorf("runner: set exit-notify nonblocking: %w", err)
	}

	statusCh, errCh := r.cli.ContainerWait(context.Background(), resp.ID, container.WaitConditionNotRunning)
	waited := make(chan pollio.ExitStatus, 1)
	waitErr := make(chan error, 1)
	go func() {
		select {
		case st := <-statusCh:
			waited <- classifyDockerExit(st.StatusCode)
		case err := <-errCh:
			waitErr <- err
		}
		exitWrite.Close()
	}()

	proc := pollio.NewChildProcess(spec.Tag, dockerWaitFunc(waited, waitErr), dockerKillFunc(r.cli, resp.ID))

	return &Child{
		Process:    proc,
		ExitFD:     int(exitRead.Fd()),
		LogFD:      logFD,
		StdinWrite: stdinWrite,
	}, nil
}

// copyContainerLog streams the container's registered log source into w,
// closing w when the container's log stream ends — this is what makes
// hang-up detection fire for this child's LogReader. source selects
// stdout (the solo-mode simulator's transcript) vs stderr (a player's
// diagnostics), mirroring ProcessRunner's split; it is never called with
// LogSourceNone (the versus-mode simulator's stdout goes to a named FIFO
// the orchestrator reads directly instead).
func (r *DockerRunner) copyContainerLog(ctx context.Context, containerID string, w io.WriteCloser, source LogSource) {
	defer w.Close()

	rc, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: source == LogSourceStdout,
		ShowStderr: source == LogSourceStderr,
		Follow:     true,
	})
	if err != nil {
		return
	}
	defer rc.Close()

	// Docker multiplexes stdout/stderr over one stream for non-TTY
	// containers; only one of the two demux targets ever receives bytes
	// given the ShowStdout/ShowStderr split above, so it's safe to point
	// both at w.
	_, _ = stdcopy.StdCopy(w, w, rc)
}

func dockerWaitFunc(waited <-chan pollio.ExitStatus, waitErr <-chan error) func() (pollio.ExitStatus, error) {
	return func() (pollio.ExitStatus, error) {
		select {
		case st := <-waited:
			return st, nil
		case err := <-waitErr:
			return pollio.ExitStatus{}, fmt.Errorf("runner: container wait: %w", err)
		}
	}
}

func dockerKillFunc(cli *client.Client, containerID string) func() {
	return func() {
		_ = cli.ContainerKill(context.Background(), containerID, "SIGKILL")
		go func() {
			_ = cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
		}()
	}
}

// classifyDockerExit maps a container's exit code to the same
// ExitStatus shape ProcessRunner produces, so the orchestrator's
// failure-cascade classification in internal/match is runner-agnostic.
func classifyDockerExit(code int64) pollio.ExitStatus {
	if code == 0 {
		return pollio.ExitStatus{Kind: pollio.ExitSuccess}
	}
	if code == 137 {
		return pollio.ExitStatus{Kind: pollio.ExitKilledBySignal, Signal: int(unix.SIGKILL)}
	}
	return pollio.ExitStatus{Kind: pollio.ExitFailed, Code: int(code)}
}

func languageFromArgv(argv []string) Language {
	if len(argv) == 0 {
		return LanguageCPP
	}
	switch filepath.Base(argv[0]) {
	case "java":
		return LanguageJava
	case "python3", "python":
		return LanguagePython
	default:
		return LanguageCPP
	}
}

// containerPath translates a host-side scratch path into its
// container-side bind-mount equivalent. Arguments that aren't rooted
// under workDir (a bare toolchain name like "java", or "-cp") pass
// through unchanged.
func containerPath(workDir, hostPath string) string {
	if !strings.HasPrefix(hostPath, workDir) {
		return hostPath
	}
	rel, err := filepath.Rel(workDir, hostPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return hostPath
	}
	return filepath.Join(containerWorkDir, rel)
}

// shellJoin renders argv as a space-separated /bin/sh -c command line.
// Match submissions never carry attacker-controlled argv (it's always
// the fixed compiled-artifact path the runner itself produced), so this
// is not a shell-injection surface.
func shellJoin(argv []string) string {
	return strings.Join(argv, " ")
}

var _ Runner = (*DockerRunner)(nil)
