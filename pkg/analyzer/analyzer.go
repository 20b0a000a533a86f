// Package analyzer turns a free-form request into structured requirements
// before it is broadcast.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/parley/pkg/completion"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/network"
)

// Categories the analyzer asks the model to choose from.
const (
	CategoryActivity = "activity"
	CategoryService  = "service"
	CategoryItem     = "item"
	CategoryVenue    = "venue"
	CategoryOther    = "other"
)

// Requirements splits what the requester must have from what they would like.
type Requirements struct {
	Essential []string `json:"essential"`
	Optional  []string `json:"optional"`
}

// Constraints are the hard limits mentioned in a request. Nil means the
// request did not state one.
type Constraints struct {
	Budget   *float64 `json:"budget"`
	Deadline *string  `json:"deadline"`
	Location *string  `json:"location"`
	Capacity *int     `json:"capacity"`
}

// Analysis is the structured reading of one request.
type Analysis struct {
	Summary             string       `json:"summary"`
	Category            string       `json:"category"`
	Requirements        Requirements `json:"requirements"`
	Constraints         Constraints  `json:"constraints"`
	Tags                []string     `json:"tags"`
	ClarificationNeeded bool         `json:"clarification_needed"`
	Questions           []string     `json:"questions"`
}

var analysisSchema = completion.Schema{
	{Name: "summary", Kind: completion.KindString, Required: true},
	{Name: "category", Kind: completion.KindString, Required: true},
	{Name: "requirements", Kind: completion.KindObject, Required: true, Fields: completion.Schema{
		{Name: "essential", Kind: completion.KindArray, Elem: completion.Of(completion.KindString)},
		{Name: "optional", Kind: completion.KindArray, Elem: completion.Of(completion.KindString)},
	}},
	{Name: "constraints", Kind: completion.KindObject, Fields: completion.Schema{
		{Name: "budget", Kind: completion.KindNumber},
		{Name: "deadline", Kind: completion.KindString},
		{Name: "location", Kind: completion.KindString},
		{Name: "capacity", Kind: completion.KindNumber},
	}},
	{Name: "tags", Kind: completion.KindArray, Required: true, Elem: completion.Of(completion.KindString)},
	{Name: "clarification_needed", Kind: completion.KindBool, Required: true},
	{Name: "questions", Kind: completion.KindArray, Elem: completion.Of(completion.KindString)},
}

const systemPrompt = `You help people state what they need from their network.

Read the request and extract:
- a one-sentence summary
- a category: activity, service, item, venue or other
- essential and optional requirements
- constraints: budget (number), deadline, location, capacity (number of people); null when not stated
- up to five tags that would help match the request to resources
- whether the request is too vague to act on, and if so one to three follow-up questions

Answer with a JSON object:
{
  "summary": "...",
  "category": "...",
  "requirements": {"essential": ["..."], "optional": ["..."]},
  "constraints": {"budget": null, "deadline": null, "location": null, "capacity": null},
  "tags": ["..."],
  "clarification_needed": false,
  "questions": []
}`

// Analyzer asks a completion service for a structured Analysis.
type Analyzer struct {
	completer completion.Completer
	logger    *slog.Logger
}

// New creates an Analyzer.
func New(completer completion.Completer, log *slog.Logger) (*Analyzer, error) {
	if completer == nil {
		return nil, errors.New("analyzer requires a completer")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{completer: completer, logger: log}, nil
}

// Analyze returns the structured reading of content. Backend and decoding
// errors are returned to the caller.
func (a *Analyzer) Analyze(ctx context.Context, content string) (*Analysis, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, network.Invalid("content", "is required")
	}

	text, err := a.completer.Complete(ctx, completion.Prompt{
		System:     systemPrompt,
		User:       "Analyze this request:\n\n" + content,
		Structured: true,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}

	analysis, err := completion.Decode[Analysis](text, analysisSchema)
	if err != nil {
		a.logger.Warn("request analysis rejected", "error", err)
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	analysis.normalize()

	a.logger.Debug("request analyzed",
		"category", analysis.Category,
		"tags", len(analysis.Tags),
		"clarification_needed", analysis.ClarificationNeeded,
	)
	return &analysis, nil
}

func (a *Analysis) normalize() {
	a.Category = strings.ToLower(strings.TrimSpace(a.Category))
	switch a.Category {
	case CategoryActivity, CategoryService, CategoryItem, CategoryVenue:
	default:
		a.Category = CategoryOther
	}
	if a.Requirements.Essential == nil {
		a.Requirements.Essential = []string{}
	}
	if a.Requirements.Optional == nil {
		a.Requirements.Optional = []string{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.Questions == nil {
		a.Questions = []string{}
	}
}
