// README: Integration test for the AMQP channel split; needs a live broker.
package infra

import (
	"context"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestAMQP_PublishSurvivesConsumerChannelClose(t *testing.T) {
	url := os.Getenv("SCHOOLRIDE_TEST_AMQP")
	if url == "" {
		t.Skip("SCHOOLRIDE_TEST_AMQP not set; skipping integration test")
	}
	queue := "schoolride.test." + time.Now().Format("150405.000000")
	mq, err := NewAMQP(url, queue)
	if err != nil {
		t.Fatalf("NewAMQP: %v", err)
	}
	defer func() { _ = mq.Close() }()
	defer func() { _, _ = mq.Channel.QueueDelete(queue, false, false, false) }()

	if mq.Channel == mq.Consume {
		t.Fatal("publish and consume share a channel")
	}
	// Consuming a missing queue raises a channel exception on the consumer channel only.
	if _, err := mq.Consume.Consume(queue+".missing", "", true, false, false, false, nil); err == nil {
		t.Fatal("expected consume on missing queue to fail")
	}
	if !mq.Consume.IsClosed() {
		t.Fatal("consume channel should be closed after the exception")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = mq.Channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{Body: []byte("ping")})
	if err != nil {
		t.Fatalf("publish after consumer close: %v", err)
	}
	if mq.Channel.IsClosed() {
		t.Fatal("publish channel closed")
	}
}
