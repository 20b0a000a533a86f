// Package kafka publishes parley domain events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/logger"
)

// Header keys attached to every message.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaVersion = "schema_version"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Publisher.
type Config struct {
	// Brokers are the bootstrap broker addresses.
	Brokers []string

	// Topic receives every event.
	Topic string

	// WriteTimeout bounds each write. Defaults to 10s.
	WriteTimeout time.Duration

	// Writer overrides the kafka-go writer. Tests use it.
	Writer MessageWriter

	Logger *slog.Logger
}

// Publisher writes events as JSON messages keyed by request id, so every
// event of one request lands on the same partition in order.
type Publisher struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher validates cfg and creates a Publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if cfg.Writer == nil && len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	w := cfg.Writer
	if w == nil {
		w = &kafkago.Writer{
			Addr:                   kafkago.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			AllowAutoTopicCreation: true,
		}
	}

	return &Publisher{
		writer:  w,
		topic:   cfg.Topic,
		timeout: cfg.WriteTimeout,
		logger:  cfg.Logger,
	}, nil
}

// Publish writes event to the topic.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.RequestID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: HeaderEventType, Value: []byte(event.EventType)},
			{Key: HeaderSchemaVersion, Value: fmt.Appendf(nil, "%d", event.SchemaVersion)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s to %s: %w", event.EventID, p.topic, err)
	}

	p.logger.Debug("event published",
		"topic", p.topic,
		"event_type", event.EventType,
		"event_id", event.EventID,
		"request_id", event.RequestID,
	)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
