// Package conclusion judges whether a negotiation transcript has reached a
// definite outcome.
//
// Detection fails open: any backend or parsing problem yields a "not
// concluded" result so a broken judge can never end a conversation early.
package conclusion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/parley/pkg/completion"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/network"
)

// MinTurns is the shortest transcript worth judging: two full round trips.
const MinTurns = 4

// Reasons reported without a judgment from the completion service.
const (
	ReasonInsufficientRounds = "insufficient rounds"
	ReasonDetectionFailed    = "detection failed, continuing"
)

// Result is the detector's verdict.
type Result struct {
	Concluded bool   `json:"concluded"`
	Reason    string `json:"reason"`
}

// Detector decides whether a transcript has concluded.
type Detector interface {
	Detect(ctx context.Context, transcript network.Transcript) Result
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, transcript network.Transcript) Result

func (f DetectorFunc) Detect(ctx context.Context, transcript network.Transcript) Result {
	return f(ctx, transcript)
}

var judgmentSchema = completion.Schema{
	{Name: "concluded", Kind: completion.KindBool, Required: true},
	{Name: "reason", Kind: completion.KindString, Required: true},
}

const systemPrompt = `You review a negotiation between a requester's assistant and a peer's assistant.
Decide whether the conversation has reached a definite conclusion.

It is concluded only if ALL of the following hold:
1. The peer has explicitly said whether it can or cannot help.
2. If the peer can help, it has said concretely what it offers.
3. Both sides have at least provisionally agreed on the key particulars (timing, location, conditions) where they apply.

Otherwise it is not concluded.

Answer with a JSON object: {"concluded": true|false, "reason": "one short sentence"}`

// AIDetector asks a completion service for a structured judgment.
type AIDetector struct {
	completer completion.Completer
	logger    *slog.Logger
}

var _ Detector = (*AIDetector)(nil)

// NewAIDetector creates a detector backed by completer. A nil logger
// discards detection failures.
func NewAIDetector(completer completion.Completer, log *slog.Logger) *AIDetector {
	if log == nil {
		log = logger.Nop()
	}
	return &AIDetector{completer: completer, logger: log}
}

// Detect judges transcript. It never returns an error.
func (d *AIDetector) Detect(ctx context.Context, transcript network.Transcript) Result {
	if len(transcript) < MinTurns {
		return Result{Concluded: false, Reason: ReasonInsufficientRounds}
	}

	result, err := d.judge(ctx, transcript)
	if err != nil {
		d.logger.Warn("conclusion detection failed",
			"turns", len(transcript),
			"error", &network.DetectionError{Err: err},
		)
		return Result{Concluded: false, Reason: ReasonDetectionFailed}
	}
	return result
}

func (d *AIDetector) judge(ctx context.Context, transcript network.Transcript) (Result, error) {
	text, err := d.completer.Complete(ctx, completion.Prompt{
		System:     systemPrompt,
		User:       "Conversation:\n\n" + Render(transcript),
		Structured: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("completion call: %w", err)
	}

	return completion.Decode[Result](text, judgmentSchema)
}

// Render formats transcript as role-labelled lines.
func Render(transcript network.Transcript) string {
	var b strings.Builder
	for i, turn := range transcript {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", Label(turn.Role), turn.Text)
	}
	return b.String()
}

// Label is the human-readable name of a conversation side.
func Label(role network.Role) string {
	switch role {
	case network.RoleRequester:
		return "Requester"
	case network.RolePeer:
		return "Peer"
	default:
		return string(role)
	}
}
