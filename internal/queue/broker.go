package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker owns one AMQP connection, from which every consumer channel and
// the response Publisher are opened. amqp091-go is the official Go
// RabbitMQ client; nothing in the example pack exercises a message
// broker, so this package's wiring is grounded on original_source's
// mq.rs topology (two durable consumer queues, one durable response
// queue, manual ack on receipt before the request body is parsed)
// rather than on a pack precedent.
type Broker struct {
	conn *amqp.Connection
}

// Dial opens a single connection to the broker at url.
func Dial(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: dial %s: %w", url, err)
	}
	return &Broker{conn: conn}, nil
}

// Close closes the underlying connection (and, transitively, every
// channel opened from it).
func (b *Broker) Close() error {
	return b.conn.Close()
}

// Consume opens a fresh channel, declares queueName as a durable queue
// (matching the original driver's QueueDeclareOptions{durable: true}),
// and returns a manual-ack delivery stream. The caller acks each
// delivery itself as soon as its body is in hand, before the
// orchestrator's own request-shape parse runs — the orchestrator
// tolerates a malformed body by reporting an EXECUTE_ERROR rather than
// relying on a requeue-and-retry.
func (b *Broker) Consume(queueName string) (<-chan amqp.Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("queue: open channel for %s: %w", queueName, err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: declare queue %s: %w", queueName, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("queue: set qos for %s: %w", queueName, err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: consume %s: %w", queueName, err)
	}
	return deliveries, nil
}
