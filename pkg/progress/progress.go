// Package progress keeps live snapshots of running broadcasts so clients
// that did not open the stream can still poll a request's progress.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/papercomputeco/parley/pkg/broadcast"
	"github.com/papercomputeco/parley/pkg/network"
)

// DefaultTTL is how long a snapshot outlives its last update.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned for requests without a snapshot.
var ErrNotFound = errors.New("no progress recorded for request")

// Peer is the live state of one peer's conversation.
type Peer struct {
	CorrelationID  string         `json:"correlation_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	PeerID         string         `json:"peer_id"`
	PeerName       string         `json:"peer_name"`
	Turns          int            `json:"turns"`
	LastRole       network.Role   `json:"last_role,omitempty"`
	LastText       string         `json:"last_text,omitempty"`
	Finished       bool           `json:"finished"`
	Status         network.Status `json:"status,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Snapshot is the folded state of a broadcast's events.
type Snapshot struct {
	RequestID string    `json:"request_id"`
	Peers     []Peer    `json:"peers"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps snapshots keyed by request id.
type Store interface {
	// Apply folds event into the request's snapshot, creating it if needed.
	Apply(ctx context.Context, event broadcast.Event) error

	// Get returns the snapshot or ErrNotFound.
	Get(ctx context.Context, requestID string) (*Snapshot, error)

	Close() error
}

// Apply folds event into s. It is shared by every Store implementation.
func (s *Snapshot) Apply(event broadcast.Event) {
	s.RequestID = event.RequestID
	if !event.EmittedAt.IsZero() {
		s.UpdatedAt = event.EmittedAt
	} else {
		s.UpdatedAt = time.Now().UTC()
	}

	if event.Kind == broadcast.EventDone {
		s.Done = true
		s.Total = event.Total
		return
	}

	p := s.peer(event)
	switch event.Kind {
	case broadcast.EventConversationStart:
		s.Total = max(s.Total, len(s.Peers))
	case broadcast.EventMessage:
		p.Turns++
		p.LastRole = event.Role
		p.LastText = event.Text
	case broadcast.EventConversationEnd:
		if !p.Finished {
			s.Succeeded++
		}
		p.Finished = true
		p.ConversationID = event.ConversationID
		p.Status = event.Status
		p.Reason = event.Reason
	case broadcast.EventError:
		if !p.Finished {
			s.Failed++
		}
		p.Finished = true
		p.ConversationID = event.ConversationID
		p.Status = event.Status
		p.Error = event.Error
	}
}

func (s *Snapshot) peer(event broadcast.Event) *Peer {
	for i := range s.Peers {
		if s.Peers[i].CorrelationID == event.CorrelationID {
			return &s.Peers[i]
		}
	}
	s.Peers = append(s.Peers, Peer{
		CorrelationID: event.CorrelationID,
		PeerID:        event.PeerID,
		PeerName:      event.PeerName,
	})
	return &s.Peers[len(s.Peers)-1]
}

// Tracker is a broadcast.Sink that records every event in a Store.
type Tracker struct {
	store Store
}

var _ broadcast.Sink = (*Tracker)(nil)

// NewTracker creates a Tracker over store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

func (t *Tracker) Write(ctx context.Context, event broadcast.Event) error {
	return t.store.Apply(ctx, event)
}

// Close is a no-op; the store outlives every broadcast.
func (t *Tracker) Close() {}
