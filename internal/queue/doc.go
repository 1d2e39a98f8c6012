// Package queue wires the match driver to RabbitMQ: two durable
// consumer queues (solo and versus match requests) feed one shared
// worker pool, whose results are published back onto a single durable
// response queue. Nothing outside this package touches amqp091-go
// directly — internal/match's Orchestrator only ever sees raw bytes in
// and a wire.GameStatus out.
package queue
