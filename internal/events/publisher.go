// Package events publishes email lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Config holds Kafka publisher configuration.
type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// Publisher writes email lifecycle events to a Kafka topic. Publishing is
// best-effort: failures are logged, never propagated, so a broker outage
// cannot stall email dispatch.
type Publisher struct {
	config Config
	writer *kafka.Writer
}

// NewPublisher creates a new Kafka event publisher.
// Returns error if enabled but required config is missing.
func NewPublisher(config Config) (*Publisher, error) {
	if config.Enabled {
		if len(config.Brokers) == 0 {
			return nil, errors.New("events publisher: at least one broker is required when enabled")
		}
	}

	// Set defaults
	if config.Topic == "" {
		config.Topic = "email-events"
	}

	var writer *kafka.Writer
	if config.Enabled {
		writer = &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        config.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: time.Second,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
		}
	}

	slog.Info("events publisher configured",
		"enabled", config.Enabled,
		"brokers", config.Brokers,
		"topic", config.Topic,
	)

	return &Publisher{
		config: config,
		writer: writer,
	}, nil
}

// Publish emits a single event. Errors are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload map[string]any) {
	if !p.config.Enabled {
		return
	}

	event := map[string]any{
		"id":        uuid.NewString(),
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      payload,
	}

	value, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal event",
			"event_type", eventType,
			"error", err,
		)
		return
	}

	msg := kafka.Message{
		Key:   []byte(eventType),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("failed to publish event",
			"event_type", eventType,
			"topic", p.config.Topic,
			"error", err,
		)
		return
	}

	slog.Debug("event published",
		"event_type", eventType,
		"topic", p.config.Topic,
	)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
