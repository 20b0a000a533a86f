// Package network holds the domain model shared by the parley orchestrator:
// users and their digital proxies, requests, conversations and the turns that
// make up a conversation's transcript.
package network

import "time"

// Role identifies which side of a conversation produced a Turn.
type Role string

const (
	// RoleRequester is the side acting for the user who posted the request.
	RoleRequester Role = "requester"

	// RolePeer is the side of the contacted network member.
	RolePeer Role = "peer"
)

// Turn is one message appended to a conversation transcript.
// Turns are never mutated after they are appended.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewTurn returns a Turn stamped with the current time.
func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Text: text, EmittedAt: time.Now().UTC()}
}

// Transcript is the ordered, append-only dialogue of a conversation.
type Transcript []Turn

// Tail returns at most the last n turns.
func (t Transcript) Tail(n int) Transcript {
	if n <= 0 || len(t) == 0 {
		return nil
	}
	if n >= len(t) {
		return t
	}
	return t[len(t)-n:]
}

// LastOf returns the most recent turn produced by role.
func (t Transcript) LastOf(role Role) (Turn, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == role {
			return t[i], true
		}
	}
	return Turn{}, false
}

// Count returns the number of turns produced by role.
func (t Transcript) Count(role Role) int {
	n := 0
	for _, turn := range t {
		if turn.Role == role {
			n++
		}
	}
	return n
}

// Clone returns a copy that does not share the backing array.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// Status is the conclusion state of a conversation.
type Status string

const (
	StatusOngoing   Status = "ongoing"
	StatusConcluded Status = "concluded"
	StatusMaxRounds Status = "max_rounds"
	StatusError     Status = "error"

	// StatusCompleted is only set when the requester closes a conversation by hand.
	StatusCompleted Status = "completed"
)

// RequestStatus is the lifecycle state of a request.
type RequestStatus string

const (
	RequestPending      RequestStatus = "pending"
	RequestBroadcasting RequestStatus = "broadcasting"
	RequestCompleted    RequestStatus = "completed"
)

// User is a network member bound to a digital proxy.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName returns the user's name, or a placeholder when it is unset.
func (u *User) DisplayName() string {
	if u == nil || u.Name == "" {
		return UnknownUserName
	}
	return u.Name
}

// UnknownUserName is shown when a member never set a display name.
const UnknownUserName = "unknown user"

// Member is a user together with their activity counts.
type Member struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Avatar            string    `json:"avatar,omitempty"`
	RequestCount      int       `json:"request_count"`
	ConversationCount int       `json:"conversation_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// Request is a natural-language ask broadcast to the network.
type Request struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Content   string        `json:"content"`
	Status    RequestStatus `json:"status"`
	Summary   string        `json:"summary,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Conversation is one peer's negotiation thread for one request.
//
// RequesterToken and PeerToken continue two different proxy sessions and have
// distinct types so one can never be passed where the other is expected.
type Conversation struct {
	ID             string         `json:"id"`
	RequestID      string         `json:"request_id"`
	PeerID         string         `json:"peer_id"`
	Transcript     Transcript     `json:"transcript"`
	RequesterToken RequesterToken `json:"requester_token,omitempty"`
	PeerToken      PeerToken      `json:"peer_token,omitempty"`
	Status         Status         `json:"status"`
	Reason         string         `json:"reason,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ResultStatus tags a per-peer broadcast outcome.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

// BroadcastResult is the outcome of one peer in a single broadcast call.
type BroadcastResult struct {
	Status             ResultStatus `json:"status"`
	ConversationID     string       `json:"conversation_id,omitempty"`
	PeerID             string       `json:"peer_id"`
	PeerName           string       `json:"peer_name"`
	Reply              string       `json:"reply,omitempty"`
	ConversationStatus Status       `json:"conversation_status,omitempty"`
	Reason             string       `json:"reason,omitempty"`
	Error              string       `json:"error,omitempty"`
}
