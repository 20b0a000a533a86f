package broadcast

import (
	"time"

	"github.com/papercomputeco/parley/pkg/network"
)

// EventKind names a progress event.
type EventKind string

const (
	EventConversationStart EventKind = "conversation_start"
	EventMessage           EventKind = "message"
	EventConversationEnd   EventKind = "conversation_end"
	EventError             EventKind = "error"
	EventDone              EventKind = "done"
)

// Event is one incremental progress report of a broadcast.
//
// Per peer the order is conversation_start, zero or more message events,
// then exactly one conversation_end or error. done is always last.
// CorrelationID ties a peer's events together before its conversation id
// exists; conversation_end carries the stored ConversationID.
type Event struct {
	Kind           EventKind      `json:"type"`
	RequestID      string         `json:"request_id"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	PeerID         string         `json:"peer_id,omitempty"`
	PeerName       string         `json:"peer_name,omitempty"`
	Role           network.Role   `json:"role,omitempty"`
	Text           string         `json:"text,omitempty"`
	Status         network.Status `json:"status,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Error          string         `json:"error,omitempty"`
	Total          int            `json:"total,omitempty"`
	EmittedAt      time.Time      `json:"emitted_at"`
}
