// README: RabbitMQ-backed dispatcher and the worker that drains the notification queue.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"schoolride/internal/logger"
	"schoolride/internal/metrics"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type consumer interface {
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// AMQPDispatcher publishes commands to a durable queue on the default exchange.
type AMQPDispatcher struct {
	ch    publisher
	queue string
}

func NewAMQPDispatcher(ch publisher, queue string) *AMQPDispatcher {
	return &AMQPDispatcher{ch: ch, queue: queue}
}

func (d *AMQPDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	if err := validate(cmd); err != nil {
		return err
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return d.ch.PublishWithContext(ctx, "", d.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(cmd.Kind),
		Body:         body,
	})
}

type Worker struct {
	ch    consumer
	queue string
	svc   *Service
	log   *zap.Logger
}

func NewWorker(ch consumer, queue string, svc *Service, log *zap.Logger) *Worker {
	return &Worker{ch: ch, queue: queue, svc: svc, log: logger.OrNop(log)}
}

// Run consumes until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.ch.ConsumeWithContext(ctx, w.queue, "schoolride-notifications", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("notification deliveries channel closed")
			}
			w.handle(ctx, d)
		}
	}
}

// handle acks delivered messages and drops undeliverable ones without requeue.
func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var cmd Command
	if err := json.Unmarshal(d.Body, &cmd); err != nil {
		metrics.NotificationFailures.WithLabelValues("decode").Inc()
		w.log.Error("drop malformed notification", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if err := w.svc.Deliver(ctx, cmd); err != nil {
		metrics.NotificationFailures.WithLabelValues("deliver").Inc()
		w.log.Warn("notification delivery failed",
			zap.String("recipient_id", string(cmd.RecipientID)),
			zap.String("kind", string(cmd.Kind)),
			zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
