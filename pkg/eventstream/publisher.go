package eventstream

import (
	"context"
	"errors"
)

// ErrNilEvent is returned by publishers handed a nil event.
var ErrNilEvent = errors.New("nil event")

// Publisher delivers domain events to an event stream backend. Publish may
// block on the network; callers on a hot path enqueue through a worker pool.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
