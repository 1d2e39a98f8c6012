// Command matchworker is the game-execution driver's entrypoint: it
// loads configuration from the environment, builds the selected runner
// (process or docker), and runs the RabbitMQ-backed worker pool until
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/delta/matchdriver/internal/config"
	"github.com/delta/matchdriver/internal/queue"
	"github.com/delta/matchdriver/internal/runner"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "matchworker: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	rn, err := newRunner(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build runner")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	log.Info().
		Str("runner_mode", string(cfg.RunnerMode)).
		Int("worker_pool_size", cfg.WorkerPoolSize).
		Msg("matchworker starting")

	if err := queue.Run(ctx, cfg, rn, log); err != nil {
		log.Fatal().Err(err).Msg("worker loop exited with error")
	}
}

func newRunner(cfg config.Config) (runner.Runner, error) {
	switch cfg.RunnerMode {
	case config.RunnerModeDocker:
		return runner.NewDockerRunner(cfg.DockerHost)
	default:
		return runner.NewProcessRunner(), nil
	}
}

// newLogger builds the process-wide base logger. MATCHWORKER_LOG_FORMAT
// selects between a human-readable console writer (the teacher's own
// development-time default) and bare JSON lines for production log
// aggregation.
func newLogger(cfg config.Config) zerolog.Logger {
	if cfg.LogFormat == "console" {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		return zerolog.New(w).Level(cfg.LogLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(cfg.LogLevel).With().Timestamp().Logger()
}
