// Package summary turns a request's finished conversations into a short
// human-readable report.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/parley/pkg/completion"
	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/utils"
)

// excerptRunes is the longest turn text copied into the digest.
const excerptRunes = 100

const systemPrompt = `You summarize the outcome of a request broadcast to a network of people.
Answer concisely and cover:
1. How many people replied.
2. Who can help and what each of them offers.
3. What parts of the request are still unmet.`

// Store is the part of storage.Driver the generator uses.
type Store interface {
	GetRequestWithConversations(ctx context.Context, requestID string) (*storage.RequestDetail, error)
	SetRequestSummary(ctx context.Context, id, summary string) error
}

// Enqueuer accepts domain events. *worker.Pool implements it.
type Enqueuer interface {
	Enqueue(event *eventstream.Event) bool
}

// Config configures a Generator.
type Config struct {
	Store     Store
	Completer completion.Completer

	// Events announces stored summaries when set.
	Events Enqueuer

	Logger *slog.Logger
}

// Generator writes request summaries.
type Generator struct {
	store     Store
	completer completion.Completer
	events    Enqueuer
	logger    *slog.Logger
}

// New creates a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Store == nil {
		return nil, errors.New("summary requires a store")
	}
	if cfg.Completer == nil {
		return nil, errors.New("summary requires a completer")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Generator{
		store:     cfg.Store,
		completer: cfg.Completer,
		events:    cfg.Events,
		logger:    cfg.Logger,
	}, nil
}

// Summarize renders the request's conversations, asks the completion service
// for a summary once, and stores it on the request, marking it completed.
func (g *Generator) Summarize(ctx context.Context, requestID string) (string, error) {
	if strings.TrimSpace(requestID) == "" {
		return "", network.Invalid("request_id", "is required")
	}

	detail, err := g.store.GetRequestWithConversations(ctx, requestID)
	if err != nil {
		return "", err
	}

	text, err := g.completer.Complete(ctx, completion.Prompt{
		System: systemPrompt,
		User:   "Summarize who can help with this request, based on the conversations below.\n\n" + Digest(detail),
	})
	if err != nil {
		return "", fmt.Errorf("generate summary for %s: %w", requestID, err)
	}
	text = strings.TrimSpace(text)

	if err := g.store.SetRequestSummary(ctx, requestID, text); err != nil {
		return "", network.Persistence("save summary", err)
	}

	if g.events != nil {
		g.events.Enqueue(eventstream.NewRequestSummarized(requestID, text, len(detail.Conversations)))
	}
	g.logger.Info("request summarized", "request_id", requestID, "conversations", len(detail.Conversations))
	return text, nil
}

// Digest renders a request and its conversations as markdown. Conversations
// keep the store's order and every turn is cut to 100 characters.
func Digest(detail *storage.RequestDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Request\n%s\n\n## Conversations\n", detail.Content)

	for _, conv := range detail.Conversations {
		fmt.Fprintf(&b, "\n### %s\n", conv.PeerName)
		for _, turn := range conv.Transcript {
			speaker := conv.PeerName
			if turn.Role == network.RoleRequester {
				speaker = "Requester"
			}
			fmt.Fprintf(&b, "- **%s**: %s\n", speaker, utils.Truncate(turn.Text, excerptRunes))
		}
	}
	return b.String()
}
