package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/parley/pkg/eventstream"
)

// ErrSinkClosed is returned by a sink that will accept no more events. The
// coordinator stops emitting to it.
var ErrSinkClosed = errors.New("sink closed")

// Sink receives progress events from one writer goroutine at a time.
// Write must return promptly once ctx is done. Sinks are closed by their
// owner, never by the coordinator.
type Sink interface {
	Write(ctx context.Context, event Event) error
	Close()
}

// SinkFunc adapts a function to a Sink with a no-op Close.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Write(ctx context.Context, event Event) error { return f(ctx, event) }
func (f SinkFunc) Close()                                       {}

// MultiSink writes every event to each member. A member that reports
// ErrSinkClosed is skipped from then on; the MultiSink itself only reports
// ErrSinkClosed once every member has.
type MultiSink struct {
	mu     sync.Mutex
	sinks  []Sink
	closed []bool
}

// NewMultiSink combines sinks, ignoring nils.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	m.closed = make([]bool, len(m.sinks))
	return m
}

// Len returns the number of member sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

func (m *MultiSink) Write(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	open := 0
	for i, s := range m.sinks {
		if m.closed[i] {
			continue
		}
		err := s.Write(ctx, event)
		if errors.Is(err, ErrSinkClosed) {
			m.closed[i] = true
			continue
		}
		open++
		if err != nil {
			errs = append(errs, err)
		}
	}

	if open == 0 && len(m.sinks) > 0 {
		return ErrSinkClosed
	}
	return errors.Join(errs...)
}

// Close closes every member.
func (m *MultiSink) Close() {
	for _, s := range m.sinks {
		s.Close()
	}
}

// ChannelSink delivers events on a buffered channel. Close may be called by
// a consumer that stopped reading; a Write blocked on the full channel then
// returns ErrSinkClosed.
type ChannelSink struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once

	// mu keeps ch open while a Write is in flight.
	mu sync.RWMutex
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// Events returns the receive side. It is closed by Close.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

func (s *ChannelSink) Write(ctx context.Context, event Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}

	select {
	case s.ch <- event:
		return nil
	case <-s.done:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops delivery and closes the channel once in-flight writes have
// returned. It is safe to call more than once.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		close(s.ch)
	})
}

// Enqueuer accepts domain events for asynchronous publishing.
// *worker.Pool implements it.
type Enqueuer interface {
	Enqueue(event *eventstream.Event) bool
}

// PublisherSink forwards progress events to the domain event stream.
type PublisherSink struct {
	queue Enqueuer
}

// NewPublisherSink creates a sink that enqueues every event on queue.
func NewPublisherSink(queue Enqueuer) *PublisherSink {
	return &PublisherSink{queue: queue}
}

// Write never blocks: a full queue drops the event.
func (s *PublisherSink) Write(_ context.Context, event Event) error {
	s.queue.Enqueue(eventstream.NewBroadcastProgress(event.RequestID, eventstream.ProgressMeta{
		Kind:           string(event.Kind),
		CorrelationID:  event.CorrelationID,
		ConversationID: event.ConversationID,
		PeerID:         event.PeerID,
		PeerName:       event.PeerName,
		Role:           event.Role,
		Text:           event.Text,
		Status:         event.Status,
		Reason:         event.Reason,
		Error:          event.Error,
		Total:          event.Total,
	}))
	return nil
}

func (s *PublisherSink) Close() {}
