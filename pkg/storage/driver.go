// Package storage defines the record store for users, requests and
// conversations. Drivers live in subpackages.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/parley/pkg/network"
)

// Driver persists the network's users, requests and conversations.
//
// Each conversation row has a single writer, the engine run or manual
// operation that owns it. Request status writes are last-writer-wins.
type Driver interface {
	// UpsertUser inserts user or replaces its profile and tokens.
	// CreatedAt is kept from the first insert.
	UpsertUser(ctx context.Context, user *network.User) error

	// GetUser returns the user or a NotFoundError.
	GetUser(ctx context.Context, id string) (*network.User, error)

	// ListPeers returns up to limit users other than excludeID, oldest first.
	// A limit of zero or less means no limit.
	ListPeers(ctx context.Context, excludeID string, limit int) ([]*network.User, error)

	// UpdateUserTokens stores a rotated credential.
	UpdateUserTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error

	// ListMembers returns every user with their request and conversation counts.
	ListMembers(ctx context.Context) ([]network.Member, error)

	// CreateRequest stores req, assigning an ID, timestamps and the
	// pending status when they are unset.
	CreateRequest(ctx context.Context, req *network.Request) error

	// GetRequest returns the request or a NotFoundError.
	GetRequest(ctx context.Context, id string) (*network.Request, error)

	// ListRequests returns requests newest first, ties broken by id, each
	// with its requester's display data and conversation counts. An empty
	// userID lists the requests of every member.
	ListRequests(ctx context.Context, userID string) ([]RequestListing, error)

	// UpdateRequestStatus sets the request status.
	UpdateRequestStatus(ctx context.Context, id string, status network.RequestStatus) error

	// SetRequestSummary stores the summary and marks the request completed.
	SetRequestSummary(ctx context.Context, id, summary string) error

	// CreateConversation stores conv, assigning an ID and timestamps when unset.
	CreateConversation(ctx context.Context, conv *network.Conversation) error

	// GetConversation returns the conversation or a NotFoundError.
	GetConversation(ctx context.Context, id string) (*network.Conversation, error)

	// UpdateConversation replaces the transcript, both tokens, status, reason
	// and summary of an existing conversation.
	UpdateConversation(ctx context.Context, conv *network.Conversation) error

	// GetConversationsByRequest returns a request's conversations ordered by
	// creation time, then id.
	GetConversationsByRequest(ctx context.Context, requestID string) ([]*network.Conversation, error)

	// GetRequestWithConversations returns the request together with its
	// conversations and their peers' display data, in the same order as
	// GetConversationsByRequest.
	GetRequestWithConversations(ctx context.Context, requestID string) (*RequestDetail, error)

	// Close releases the driver's resources.
	Close() error
}

// ConversationDetail is a conversation joined with its peer's display data.
type ConversationDetail struct {
	network.Conversation
	PeerName   string `json:"peer_name"`
	PeerAvatar string `json:"peer_avatar,omitempty"`
}

// RequestDetail is a request with all of its conversations.
type RequestDetail struct {
	network.Request
	Conversations []ConversationDetail `json:"conversations"`
}

// RequestListing is a request with its requester's display data and a
// count of its conversations. Settled counts the concluded and completed ones.
type RequestListing struct {
	network.Request
	RequesterName     string `json:"requester_name"`
	RequesterAvatar   string `json:"requester_avatar,omitempty"`
	ConversationCount int    `json:"conversation_count"`
	SettledCount      int    `json:"settled_count"`
}

// Settled reports whether a conversation ended in an agreement.
func Settled(status network.Status) bool {
	return status == network.StatusConcluded || status == network.StatusCompleted
}

// NewID returns a fresh record id.
func NewID() string {
	return uuid.NewString()
}

// PrepareRequest fills the fields CreateRequest assigns.
func PrepareRequest(req *network.Request, now time.Time) {
	if req.ID == "" {
		req.ID = NewID()
	}
	if req.Status == "" {
		req.Status = network.RequestPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
}

// PrepareConversation fills the fields CreateConversation assigns.
func PrepareConversation(conv *network.Conversation, now time.Time) {
	if conv.ID == "" {
		conv.ID = NewID()
	}
	if conv.Status == "" {
		conv.Status = network.StatusOngoing
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
}

// PeerName returns the display name for a peer, falling back to the
// unknown-user placeholder.
func PeerName(name string) string {
	if name == "" {
		return network.UnknownUserName
	}
	return name
}
