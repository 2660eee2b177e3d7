package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the optional Kafka sink.
type KafkaConfig struct {
	Enabled bool     `json:"enabled" envconfig:"ENABLED"`
	Brokers []string `json:"brokers" envconfig:"BROKERS"`
	Topic   string   `json:"topic" envconfig:"TOPIC"`
}

// DefaultKafkaConfig returns a disabled sink pointed at localhost.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "agentcore.events",
	}
}

// KafkaPublisher writes bus events to a Kafka topic, keyed by session so one
// session's events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher for the given config.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher needs at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher needs a topic")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, logger: logger}, nil
}

// Publish writes one event. Marshal failures are returned; delivery failures
// too, so the caller decides whether to retry or drop.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event to kafka: %w", err)
	}
	return nil
}

// Attach subscribes the publisher to a bus. Delivery errors are logged, not
// propagated; the in-process consumers must not stall on a broker outage.
func (p *KafkaPublisher) Attach(ctx context.Context, b *Bus) {
	b.Subscribe(func(ev Event) {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.Publish(writeCtx, ev); err != nil {
			p.logger.Warn("kafka event delivery failed", "kind", ev.Kind, "error", err)
		}
	})
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
