// Package kafka provides a Kafka-backed eventstream publisher. Events are
// keyed by scope so every consumer sees a scope's changes in apply order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/eventstream"
)

// DefaultTopic is the default topic memory change events are published to.
const DefaultTopic = "engram.memory.changes"

// Publisher implements eventstream.Publisher using kafka-go.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic is the topic to publish to. Defaults to DefaultTopic if empty.
	Topic string
}

// NewPublisher creates a new Kafka eventstream publisher.
func NewPublisher(c Config, logger *zap.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(c.Brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}

	logger.Info("kafka eventstream publisher initialized",
		zap.Strings("brokers", c.Brokers),
		zap.String("topic", topic),
	)

	return &Publisher{
		writer: writer,
		logger: logger,
	}, nil
}

// PublishChange publishes a memory change event, keyed by scope.
func (p *Publisher) PublishChange(ctx context.Context, event *eventstream.MemoryChangedEvent) error {
	if event == nil {
		return eventstream.ErrNilChangeEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling change event %s: %w", event.EventID, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Scope.Key()),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publishing change event %s: %w", event.EventID, err)
	}

	p.logger.Debug("published change event",
		zap.String("event_id", event.EventID),
		zap.String("memory_id", event.MemoryID),
		zap.String("operation", event.Operation),
	)

	return nil
}

// Close closes the underlying Kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
