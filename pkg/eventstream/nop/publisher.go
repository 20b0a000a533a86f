// Package nop provides the publisher used when event streaming is disabled.
// Events are logged at debug level and then dropped.
package nop

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/logger"
)

type Publisher struct {
	logger  *slog.Logger
	dropped atomic.Int64
}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher. A nil logger discards the debug lines.
func NewPublisher(log *slog.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{logger: log}
}

func (p *Publisher) Publish(_ context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	p.dropped.Add(1)
	p.logger.Debug("event dropped, streaming disabled",
		"event_type", event.EventType,
		"request_id", event.RequestID,
	)
	return nil
}

// Dropped returns how many events were accepted and discarded.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Publisher) Close() error {
	if n := p.dropped.Load(); n > 0 {
		p.logger.Debug("event publisher closed", "dropped", n)
	}
	return nil
}
