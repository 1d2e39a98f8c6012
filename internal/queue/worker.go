package queue

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/delta/matchdriver/internal/config"
	"github.com/delta/matchdriver/internal/match"
	"github.com/delta/matchdriver/internal/runner"
	"github.com/delta/matchdriver/internal/wire"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Run wires the two consumer queues into one shared worker pool and
// blocks until ctx is cancelled. It is the single entrypoint
// cmd/matchworker calls after building its config and runner.
func Run(ctx context.Context, cfg config.Config, rn runner.Runner, log zerolog.Logger) error {
	broker, err := Dial(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer broker.Close()

	publisher, err := NewPublisher(broker, cfg.RabbitMQResponseQueue)
	if err != nil {
		return err
	}
	defer publisher.Close()

	normal, err := broker.Consume(cfg.RabbitMQNormalQueue)
	if err != nil {
		return err
	}
	pvp, err := broker.Consume(cfg.RabbitMQPvPQueue)
	if err != nil {
		return err
	}

	requests := fanIn(ctx, cfg.WorkerPoolSize+1, normal, pvp)

	loop := &workerLoop{cfg: cfg, rn: rn, publisher: publisher, log: log}
	loop.run(ctx, requests)
	return nil
}

// workerLoop runs cfg.WorkerPoolSize goroutines, each owning its own
// match.Orchestrator (per spec.md §5's one-orchestrator-per-worker
// scheduling model) and pulling from the one shared, fanned-in request
// channel — mirroring original_source/src/mq.rs's NUM_OF_THREADS worker
// pool fed by a single crossbeam-channel receiver shared across both
// consumer queues.
type workerLoop struct {
	cfg       config.Config
	rn        runner.Runner
	publisher *Publisher
	log       zerolog.Logger
}

func (w *workerLoop) run(ctx context.Context, requests <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.WorkerPoolSize; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log := w.log.With().Int("worker_id", workerID).Logger()
			orch := match.New(w.cfg, w.rn, log)
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-requests:
					if !ok {
						return
					}
					w.handle(ctx, orch, log, d)
				}
			}
		}(i)
	}
	wg.Wait()
}

// handle acks the delivery on receipt, before its body is parsed (the
// orchestrator itself tolerates a malformed body and reports an
// EXECUTE_ERROR rather than looping the queue), publishes the
// intake-time EXECUTING status, then runs the match to completion and
// publishes its terminal status.
func (w *workerLoop) handle(ctx context.Context, orch *match.Orchestrator, log zerolog.Logger, d amqp.Delivery) {
	gameID := peekGameID(d.Body)

	if err := d.Ack(false); err != nil {
		log.Error().Err(err).Msg("failed to ack delivery")
		return
	}

	if err := w.publisher.Publish(ctx, wire.Executing(gameID)); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("failed to publish executing status")
	}

	status := orch.Handle(ctx, d.Body)

	if err := w.publisher.Publish(ctx, status); err != nil {
		log.Error().Err(err).Str("game_id", status.GameID).Msg("failed to publish terminal status")
	}
}

// peekGameID extracts just the game_id field without committing to
// either request shape, so the EXECUTING status can be published before
// the orchestrator's own shape-specific unmarshal runs.
func peekGameID(raw []byte) string {
	var probe struct {
		GameID string `json:"game_id"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.GameID
}

// fanIn merges every channel in ins into one buffered output channel,
// closing it once every input has closed or ctx is cancelled.
func fanIn(ctx context.Context, buffer int, ins ...<-chan amqp.Delivery) <-chan amqp.Delivery {
	out := make(chan amqp.Delivery, buffer)
	var wg sync.WaitGroup
	for _, in := range ins {
		wg.Add(1)
		go func(in <-chan amqp.Delivery) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- d:
					case <-ctx.Done():
						return
					}
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
