// Package payout delivers settlement payout signals to downstream consumers
// over Kafka. Rows are staged in an outbox by the same transaction that moves
// seller funds, then relayed here, so a payout message exists if and only if
// the corresponding settlement committed.
package payout

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"palengke.dev/internal/obs"
)

// Publisher sends one payout message. The key carries the seller reference so
// per-seller ordering survives partitioning.
type Publisher interface {
	Publish(ctx context.Context, key, payload []byte) error
	Close() error
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a publisher writing to one topic across brokers.
func NewKafkaPublisher(brokers []string, topic string) Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	obs.Event("payout.publisher_init", map[string]any{
		"brokers": brokers,
		"topic":   topic,
	})
	return &kafkaPublisher{writer: writer}
}

func (p *kafkaPublisher) Publish(ctx context.Context, key, payload []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: payload})
	if err != nil {
		return fmt.Errorf("publish payout: %w", err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close payout publisher: %w", err)
	}
	return nil
}
