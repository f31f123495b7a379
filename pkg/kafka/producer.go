// Package kafka carries texsearch's one analytics event stream: the
// orchestrator's search events and the reconciler's reconcile events, both
// produced by internal/analytics.Collector onto a single topic and consumed
// by internal/analytics.Aggregator on the other side, in the standalone
// cmd/analytics service.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/texsearch/texsearch/pkg/config"
	"github.com/texsearch/texsearch/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Event is one analytics record published to Kafka: a SearchEvent or
// ReconcileEvent (see internal/analytics), keyed "analytics" so a single
// partition preserves arrival order for a given topic.
type Event struct {
	Key   string
	Value any
}

// Producer publishes JSON-encoded analytics events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for the given topic. RequiredAcks is set to
// RequireAll since analytics events back the aggregator's stats dashboard
// and periodic Postgres snapshots — losing the tail of a reconciliation run
// would silently skew reconciled-doc counts.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &Producer{
		writer: w,
		logger: logger.WithComponent("kafka-producer").With("topic", topic),
	}
}

// Publish serialises a single event and writes it to Kafka synchronously.
// internal/analytics.Collector calls this from its per-event drain loop;
// every event published this way lands on the "analytics" key, so Kafka's
// partition hash keeps one process's stream of search/reconcile events in
// order relative to each other.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return fmt.Errorf("marshaling event value: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message",
			"key", event.Key,
			"error", err,
		)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("message published",
		"key", event.Key,
		"value_size", len(value),
	)
	return nil
}

// PublishBatch writes multiple events to Kafka in a single write call.
// internal/analytics.Collector uses this for the burst of events still
// sitting in its buffer at shutdown, rather than one WriteMessages round
// trip per queued event.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return fmt.Errorf("marshaling event value: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(event.Key),
			Value: value,
		})
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish batch",
			"count", len(messages),
			"error", err,
		)
		return fmt.Errorf("publishing batch to kafka: %w", err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
