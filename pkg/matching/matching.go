// Package matching ranks the peers of a negotiated request by how well
// their replies meet it.
package matching

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/parley/pkg/analyzer"
	"github.com/papercomputeco/parley/pkg/completion"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
)

// DefaultConcurrency bounds parallel evaluations.
const DefaultConcurrency = 4

// Score bands.
const (
	HighScore   = 80
	MediumScore = 60
)

const systemPrompt = `You evaluate how well a person's offer meets a request.

Score each dimension from 0 to 100:
- relevance: how closely what they offer matches what was asked
- availability: whether it is available on acceptable terms
- value: how much it contributes to meeting the request
- fit: how well the person suits the requester

Answer with a JSON object:
{
  "score": 0,
  "breakdown": {"relevance": 0, "availability": 0, "value": 0, "fit": 0},
  "highlights": ["..."],
  "concerns": ["..."],
  "summary": "one sentence"
}`

var evaluationSchema = completion.Schema{
	{Name: "score", Kind: completion.KindNumber, Required: true},
	{Name: "breakdown", Kind: completion.KindObject, Required: true, Fields: completion.Schema{
		{Name: "relevance", Kind: completion.KindNumber, Required: true},
		{Name: "availability", Kind: completion.KindNumber, Required: true},
		{Name: "value", Kind: completion.KindNumber, Required: true},
		{Name: "fit", Kind: completion.KindNumber, Required: true},
	}},
	{Name: "highlights", Kind: completion.KindArray, Elem: completion.Of(completion.KindString)},
	{Name: "concerns", Kind: completion.KindArray, Elem: completion.Of(completion.KindString)},
	{Name: "summary", Kind: completion.KindString},
}

// Store is the part of storage.Driver the ranker uses.
type Store interface {
	GetRequestWithConversations(ctx context.Context, requestID string) (*storage.RequestDetail, error)
}

// Analyzer reads a request into structured requirements.
type Analyzer interface {
	Analyze(ctx context.Context, content string) (*analyzer.Analysis, error)
}

// Config configures a Ranker.
type Config struct {
	Store     Store
	Completer completion.Completer
	Analyzer  Analyzer

	// Concurrency bounds parallel evaluations. Defaults to 4.
	Concurrency int

	Logger *slog.Logger
}

// Breakdown is the per-dimension score of a match.
type Breakdown struct {
	Relevance    float64 `json:"relevance"`
	Availability float64 `json:"availability"`
	Value        float64 `json:"value"`
	Fit          float64 `json:"fit"`
}

// Match is one peer's evaluated offer.
type Match struct {
	ConversationID string         `json:"conversation_id"`
	PeerID         string         `json:"peer_id"`
	PeerName       string         `json:"peer_name"`
	Status         network.Status `json:"status"`
	Score          float64        `json:"score"`
	Breakdown      *Breakdown     `json:"breakdown,omitempty"`
	Highlights     []string       `json:"highlights"`
	Concerns       []string       `json:"concerns"`
	Summary        string         `json:"summary,omitempty"`
	Reason         string         `json:"reason"`

	offer string
}

// Coverage splits the essential requirements by whether a medium or better
// match mentions them.
type Coverage struct {
	Fulfilled   []string `json:"fulfilled"`
	Unfulfilled []string `json:"unfulfilled"`
}

// Ranking is the ranked result for one request.
type Ranking struct {
	RequestID string             `json:"request_id"`
	Quick     bool               `json:"quick"`
	Analysis  *analyzer.Analysis `json:"analysis"`
	Matches   []Match            `json:"matches"`
	High      int                `json:"high"`
	Medium    int                `json:"medium"`
	Low       int                `json:"low"`
	Skipped   int                `json:"skipped"`
	Coverage  Coverage           `json:"coverage"`
}

// Top returns the best match, if any.
func (r *Ranking) Top() (Match, bool) {
	if len(r.Matches) == 0 {
		return Match{}, false
	}
	return r.Matches[0], true
}

// Ranker scores the offers peers made during negotiation.
type Ranker struct {
	store       Store
	completer   completion.Completer
	analyzer    Analyzer
	concurrency int
	logger      *slog.Logger
}

// New creates a Ranker.
func New(cfg Config) (*Ranker, error) {
	if cfg.Store == nil {
		return nil, errors.New("matching requires a store")
	}
	if cfg.Completer == nil {
		return nil, errors.New("matching requires a completer")
	}
	if cfg.Analyzer == nil {
		return nil, errors.New("matching requires an analyzer")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Ranker{
		store:       cfg.Store,
		completer:   cfg.Completer,
		analyzer:    cfg.Analyzer,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}, nil
}

// Rank analyzes the request and scores every conversation in which the peer
// replied, best first. Offers whose evaluation fails are dropped and counted
// as skipped. With quick set, offers are scored by keyword overlap without
// calling the completion service per offer.
func (r *Ranker) Rank(ctx context.Context, requestID string, quick bool) (*Ranking, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, network.Invalid("request_id", "is required")
	}

	detail, err := r.store.GetRequestWithConversations(ctx, requestID)
	if err != nil {
		return nil, err
	}
	analysis, err := r.analyzer.Analyze(ctx, detail.Content)
	if err != nil {
		return nil, err
	}

	offers := Offers(detail)
	ranking := &Ranking{RequestID: requestID, Quick: quick, Analysis: analysis}

	evaluated := make([]*Match, len(offers))
	if quick {
		for i := range offers {
			m := offers[i]
			m.Score = QuickScore(analysis, m.Status, m.offer)
			evaluated[i] = &m
		}
	} else {
		var g errgroup.Group
		g.SetLimit(r.concurrency)
		for i := range offers {
			g.Go(func() error {
				m, err := r.evaluate(ctx, detail.Content, analysis, offers[i])
				if err != nil {
					r.logger.Warn("offer evaluation dropped",
						"request_id", requestID,
						"conversation_id", offers[i].ConversationID,
						"error", err,
					)
					return nil
				}
				evaluated[i] = m
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, m := range evaluated {
		if m == nil {
			ranking.Skipped++
			continue
		}
		m.Reason = Reason(*m)
		ranking.Matches = append(ranking.Matches, *m)
	}
	if ranking.Matches == nil {
		ranking.Matches = []Match{}
	}
	slices.SortStableFunc(ranking.Matches, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})

	ranking.tally(analysis.Requirements.Essential)

	r.logger.Info("offers ranked",
		"request_id", requestID,
		"matches", len(ranking.Matches),
		"skipped", ranking.Skipped,
		"quick", quick,
	)
	return ranking, nil
}

type evaluation struct {
	Score      float64   `json:"score"`
	Breakdown  Breakdown `json:"breakdown"`
	Highlights []string  `json:"highlights"`
	Concerns   []string  `json:"concerns"`
	Summary    string    `json:"summary"`
}

func (r *Ranker) evaluate(ctx context.Context, content string, analysis *analyzer.Analysis, offer Match) (*Match, error) {
	text, err := r.completer.Complete(ctx, completion.Prompt{
		System:     systemPrompt,
		User:       evaluationPrompt(content, analysis, offer),
		Structured: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate offer: %w", err)
	}
	ev, err := completion.Decode[evaluation](text, evaluationSchema)
	if err != nil {
		return nil, fmt.Errorf("evaluate offer: %w", err)
	}

	b := Breakdown{
		Relevance:    clamp(ev.Breakdown.Relevance),
		Availability: clamp(ev.Breakdown.Availability),
		Value:        clamp(ev.Breakdown.Value),
		Fit:          clamp(ev.Breakdown.Fit),
	}
	offer.Score = clamp(ev.Score)
	offer.Breakdown = &b
	offer.Highlights = nonNil(ev.Highlights)
	offer.Concerns = nonNil(ev.Concerns)
	offer.Summary = strings.TrimSpace(ev.Summary)
	return &offer, nil
}

func evaluationPrompt(content string, a *analyzer.Analysis, offer Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Request\n%s\n\n", content)
	fmt.Fprintf(&b, "- Summary: %s\n- Category: %s\n", a.Summary, a.Category)
	fmt.Fprintf(&b, "- Essential: %s\n", orNone(strings.Join(a.Requirements.Essential, ", ")))
	fmt.Fprintf(&b, "- Optional: %s\n", orNone(strings.Join(a.Requirements.Optional, ", ")))
	if a.Constraints.Budget != nil {
		fmt.Fprintf(&b, "- Budget: %.2f\n", *a.Constraints.Budget)
	}
	if a.Constraints.Deadline != nil {
		fmt.Fprintf(&b, "- Deadline: %s\n", *a.Constraints.Deadline)
	}
	fmt.Fprintf(&b, "- Tags: %s\n", orNone(strings.Join(a.Tags, ", ")))
	fmt.Fprintf(&b, "\n## Offer from %s (%s)\n%s\n", offer.PeerName, offer.Status, offer.offer)
	return b.String()
}

func (r *Ranking) tally(essential []string) {
	fulfilled := map[string]bool{}
	for _, m := range r.Matches {
		switch {
		case m.Score >= HighScore:
			r.High++
		case m.Score >= MediumScore:
			r.Medium++
		default:
			r.Low++
		}
		if m.Score < MediumScore {
			continue
		}
		text := strings.ToLower(m.offer)
		for _, req := range essential {
			if strings.Contains(text, strings.ToLower(req)) {
				fulfilled[req] = true
			}
		}
	}

	r.Coverage = Coverage{Fulfilled: []string{}, Unfulfilled: []string{}}
	for _, req := range essential {
		if fulfilled[req] {
			r.Coverage.Fulfilled = append(r.Coverage.Fulfilled, req)
		} else {
			r.Coverage.Unfulfilled = append(r.Coverage.Unfulfilled, req)
		}
	}
}

// Offers returns one unscored match per conversation in which the peer
// replied, in store order. Failed conversations are not offers.
func Offers(detail *storage.RequestDetail) []Match {
	var offers []Match
	for _, c := range detail.Conversations {
		if c.Status == network.StatusError {
			continue
		}
		var replies []string
		for _, t := range c.Transcript {
			if t.Role == network.RolePeer && strings.TrimSpace(t.Text) != "" {
				replies = append(replies, t.Text)
			}
		}
		if len(replies) == 0 {
			continue
		}
		offers = append(offers, Match{
			ConversationID: c.ID,
			PeerID:         c.PeerID,
			PeerName:       c.PeerName,
			Status:         c.Status,
			Highlights:     []string{},
			Concerns:       []string{},
			offer:          strings.Join(replies, "\n"),
		})
	}
	return offers
}

// QuickScore scores an offer without a model: 50 to start, 10 for every
// request tag the offer mentions, 10 for a settled conversation and 5 for
// one cut off at the round limit, clamped to 0..100.
func QuickScore(a *analyzer.Analysis, status network.Status, offer string) float64 {
	score := 50.0
	text := strings.ToLower(offer)
	for _, tag := range a.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" && strings.Contains(text, tag) {
			score += 10
		}
	}
	switch {
	case storage.Settled(status):
		score += 10
	case status == network.StatusMaxRounds:
		score += 5
	}
	return clamp(score)
}

// Reason renders a one-line recommendation for a match.
func Reason(m Match) string {
	var reason string
	switch {
	case m.Score >= HighScore:
		reason = m.PeerName + " is a strong match."
	case m.Score >= MediumScore:
		reason = m.PeerName + " can help."
	default:
		reason = m.PeerName + " might be useful."
	}
	if len(m.Highlights) > 0 {
		reason += " " + m.Highlights[0]
	}
	if len(m.Concerns) > 0 && m.Score < 70 {
		reason += " (note: " + m.Concerns[0] + ")"
	}
	return reason
}

func clamp(v float64) float64 {
	return min(100, max(0, v))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
