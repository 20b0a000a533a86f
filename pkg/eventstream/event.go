package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/parley/pkg/network"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeConversationFinalized is emitted after a broadcast persists
	// a finished conversation.
	EventTypeConversationFinalized = "parley.conversation.finalized"

	// EventTypeRequestSummarized is emitted after a request summary is stored.
	EventTypeRequestSummarized = "parley.request.summarized"

	// EventTypeBroadcastProgress carries one live broadcast progress event.
	EventTypeBroadcastProgress = "parley.broadcast.progress"
)

// Source names the service instance that emitted an event.
const Source = "parley"

// Event is a transport-neutral domain event. Exactly one of Conversation,
// Summary or Progress is set, matching EventType.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	Source        string    `json:"source"`
	RequestID     string    `json:"request_id"`

	Conversation *ConversationMeta `json:"conversation,omitempty"`
	Summary      *SummaryMeta      `json:"summary,omitempty"`
	Progress     *ProgressMeta     `json:"progress,omitempty"`
}

// ConversationMeta describes a finalized conversation.
type ConversationMeta struct {
	ID         string             `json:"id"`
	PeerID     string             `json:"peer_id"`
	Status     network.Status     `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	TurnCount  int                `json:"turn_count"`
	Transcript network.Transcript `json:"transcript"`
}

// SummaryMeta describes a stored request summary.
type SummaryMeta struct {
	Text              string `json:"text"`
	ConversationCount int    `json:"conversation_count"`
}

// ProgressMeta mirrors a broadcast progress event.
type ProgressMeta struct {
	Kind           string         `json:"kind"`
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
}

func newEvent(eventType, requestID string) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        Source,
		RequestID:     requestID,
	}
}

// NewConversationFinalized builds the event announcing conv.
func NewConversationFinalized(conv *network.Conversation) *Event {
	e := newEvent(EventTypeConversationFinalized, conv.RequestID)
	e.Conversation = &ConversationMeta{
		ID:         conv.ID,
		PeerID:     conv.PeerID,
		Status:     conv.Status,
		Reason:     conv.Reason,
		TurnCount:  len(conv.Transcript),
		Transcript: conv.Transcript.Clone(),
	}
	return e
}

// NewRequestSummarized builds the event announcing a stored summary.
func NewRequestSummarized(requestID, summary string, conversations int) *Event {
	e := newEvent(EventTypeRequestSummarized, requestID)
	e.Summary = &SummaryMeta{Text: summary, ConversationCount: conversations}
	return e
}

// NewBroadcastProgress wraps a progress event for publishing.
func NewBroadcastProgress(requestID string, progress ProgressMeta) *Event {
	e := newEvent(EventTypeBroadcastProgress, requestID)
	e.Progress = &progress
	return e
}
