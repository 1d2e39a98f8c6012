package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/delta/matchdriver/internal/wire"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends wire.GameStatus messages to one durable response
// queue over its own channel, mirroring original_source's Publisher
// (one connection-owned channel, reused across every publish call
// rather than opened per-message, guarded by a mutex since it's shared
// across every worker goroutine — amqp091-go channels aren't safe for
// concurrent use).
type Publisher struct {
	mu        sync.Mutex
	ch        *amqp.Channel
	queueName string
}

// NewPublisher opens a fresh channel on b and declares queueName durable.
func NewPublisher(b *Broker, queueName string) (*Publisher, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("queue: open publisher channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue: declare response queue %s: %w", queueName, err)
	}
	return &Publisher{ch: ch, queueName: queueName}, nil
}

// Publish marshals status and sends it to the response queue via the
// default exchange, routed by queue name.
func (p *Publisher) Publish(ctx context.Context, status wire.GameStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("queue: marshal game status: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, "", p.queueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("queue: publish game status %s: %w", status.GameID, err)
	}
	return nil
}

// Close closes the publisher's channel.
func (p *Publisher) Close() error {
	return p.ch.Close()
}
