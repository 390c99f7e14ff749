// README: RabbitMQ connection and channel setup for the notification queue.
package infra

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP bundles a connection with a declared durable queue. Publishing and
// consuming run on separate channels so a consumer-side channel exception
// leaves the publisher open.
type AMQP struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Consume *amqp.Channel
	Queue   string
}

func NewAMQP(url, queue string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	a := &AMQP{Conn: conn, Queue: queue}
	if a.Channel, err = conn.Channel(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("amqp publish channel: %w", err)
	}
	if a.Consume, err = conn.Channel(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("amqp consume channel: %w", err)
	}
	if _, err := a.Channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("amqp queue declare %s: %w", queue, err)
	}
	return a, nil
}

func (a *AMQP) Close() error {
	for _, ch := range []*amqp.Channel{a.Consume, a.Channel} {
		if ch != nil && !ch.IsClosed() {
			if err := ch.Close(); err != nil {
				return fmt.Errorf("close amqp channel: %w", err)
			}
		}
	}
	if a.Conn != nil && !a.Conn.IsClosed() {
		if err := a.Conn.Close(); err != nil {
			return fmt.Errorf("close amqp connection: %w", err)
		}
	}
	return nil
}
