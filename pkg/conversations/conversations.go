// Package conversations holds the operations a requester performs on
// stored conversations by hand: continuing one, closing one, and browsing.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/parley/pkg/engine"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
)

// Store is the part of storage.Driver the service uses.
type Store interface {
	GetUser(ctx context.Context, id string) (*network.User, error)
	GetConversation(ctx context.Context, id string) (*network.Conversation, error)
	UpdateConversation(ctx context.Context, conv *network.Conversation) error
	GetRequestWithConversations(ctx context.Context, requestID string) (*storage.RequestDetail, error)
	ListMembers(ctx context.Context) ([]network.Member, error)
	ListRequests(ctx context.Context, userID string) ([]storage.RequestListing, error)
}

// Config configures a Service.
type Config struct {
	Store  Store
	Sender engine.Sender

	// CallTimeout bounds the peer call of Continue. Defaults to 2m.
	CallTimeout time.Duration

	Logger *slog.Logger
}

// Service implements manual conversation operations.
type Service struct {
	store       Store
	sender      engine.Sender
	callTimeout time.Duration
	logger      *slog.Logger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("conversations requires a store")
	}
	if cfg.Sender == nil {
		return nil, errors.New("conversations requires a sender")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = engine.DefaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Service{
		store:       cfg.Store,
		sender:      cfg.Sender,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
	}, nil
}

// ContinueResult is the peer's reply and the updated transcript.
type ContinueResult struct {
	Reply      string             `json:"reply"`
	Transcript network.Transcript `json:"transcript"`
}

// Continue sends a human-written message to the conversation's peer on the
// stored peer session and records both turns. Nothing is stored when the
// peer call fails.
func (s *Service) Continue(ctx context.Context, conversationID, message string) (*ContinueResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, network.Invalid("message", "is required")
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	peer, err := s.store.GetUser(ctx, conv.PeerID)
	if err != nil {
		return nil, fmt.Errorf("load peer %s: %w", conv.PeerID, err)
	}

	sent := network.NewTurn(network.RoleRequester, message)

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	reply, err := s.sender.SendTurn(callCtx, peer, message, string(conv.PeerToken))
	cancel()
	if err != nil {
		return nil, err
	}

	conv.Transcript = append(conv.Transcript, sent, network.NewTurn(network.RolePeer, reply.Text))
	if reply.SessionID != "" {
		conv.PeerToken = network.PeerToken(reply.SessionID)
	}
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, network.Persistence("save conversation", err)
	}

	s.logger.Info("conversation continued", "conversation_id", conv.ID, "turns", len(conv.Transcript))
	return &ContinueResult{Reply: reply.Text, Transcript: conv.Transcript}, nil
}

// MarkCompleted closes a conversation by hand.
func (s *Service) MarkCompleted(ctx context.Context, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.Status = network.StatusCompleted
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return network.Persistence("complete conversation", err)
	}
	s.logger.Info("conversation completed", "conversation_id", conv.ID)
	return nil
}

// List returns a request's conversations with their peers' display data.
func (s *Service) List(ctx context.Context, requestID string) ([]storage.ConversationDetail, error) {
	detail, err := s.store.GetRequestWithConversations(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if detail.Conversations == nil {
		return []storage.ConversationDetail{}, nil
	}
	return detail.Conversations, nil
}

// Members returns the network's members with their activity counts.
func (s *Service) Members(ctx context.Context) ([]network.Member, error) {
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, network.Persistence("list members", err)
	}
	if members == nil {
		return []network.Member{}, nil
	}
	return members, nil
}

// Requests lists requests newest first. An empty userID lists everyone's.
func (s *Service) Requests(ctx context.Context, userID string) ([]storage.RequestListing, error) {
	listings, err := s.store.ListRequests(ctx, userID)
	if err != nil {
		return nil, network.Persistence("list requests", err)
	}
	if listings == nil {
		return []storage.RequestListing{}, nil
	}
	return listings, nil
}
