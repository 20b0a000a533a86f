// Package engine drives one bounded, two-sided conversation between a
// requester's proxy and a peer's proxy.
//
// Each round sends a prompt to the peer, asks the detector whether the
// exchange has concluded and, unless it has or the round budget is spent,
// has the requester's proxy write the next prompt.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/parley/pkg/conclusion"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/proxychat"
)

const (
	DefaultMaxRounds   = 5
	DefaultCallTimeout = 2 * time.Minute
)

// Sender posts one turn to a user's proxy, continuing the session named by
// token. *proxychat.Adapter implements it.
type Sender interface {
	SendTurn(ctx context.Context, user *network.User, text, token string) (proxychat.Reply, error)
}

// Observer is told about every turn as soon as it is appended.
type Observer interface {
	TurnAppended(turn network.Turn)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(turn network.Turn)

func (f ObserverFunc) TurnAppended(turn network.Turn) { f(turn) }

// Config configures an Engine.
type Config struct {
	Sender   Sender
	Detector conclusion.Detector

	// MaxRounds caps peer turns per run. Defaults to 5.
	MaxRounds int

	// CallTimeout bounds every proxy and detector call. Defaults to 2m.
	CallTimeout time.Duration

	Logger *slog.Logger
}

// Engine runs conversations. It is safe for concurrent use; all per-run
// state lives in Run.
type Engine struct {
	sender      Sender
	detector    conclusion.Detector
	maxRounds   int
	callTimeout time.Duration
	logger      *slog.Logger
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Sender == nil {
		return nil, errors.New("engine requires a sender")
	}
	if cfg.Detector == nil {
		return nil, errors.New("engine requires a conclusion detector")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Engine{
		sender:      cfg.Sender,
		detector:    cfg.Detector,
		maxRounds:   cfg.MaxRounds,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
	}, nil
}

// MaxRounds returns the configured round budget.
func (e *Engine) MaxRounds() int {
	return e.maxRounds
}

// Run is the input of one conversation.
type Run struct {
	Requester *network.User
	Peer      *network.User
	Content   string

	// Observer is optional.
	Observer Observer
}

// Outcome is the result of one conversation. Err is set only when Status is
// StatusError; Transcript then holds every turn appended before the failure.
type Outcome struct {
	Transcript     network.Transcript
	Status         network.Status
	RequesterToken network.RequesterToken
	PeerToken      network.PeerToken
	Reason         string
	Err            error
}

// Run drives the conversation to one of concluded, max_rounds or error.
func (e *Engine) Run(ctx context.Context, run Run) Outcome {
	log := e.logger.With("peer_id", userID(run.Peer))
	out := Outcome{Status: network.StatusOngoing}

	fail := func(round int, side string, err error) Outcome {
		out.Status = network.StatusError
		out.Err = err
		out.Reason = fmt.Sprintf("%s turn failed in round %d: %v", side, round+1, err)
		log.Warn("conversation failed", "round", round, "side", side, "turns", len(out.Transcript), "error", err)
		return out
	}

	prompt := Opener(run.Content)
	for round := range e.maxRounds {
		if err := ctx.Err(); err != nil {
			return fail(round, "peer", err)
		}

		text, peerToken, err := send(ctx, e, run.Peer, prompt, out.PeerToken)
		if err != nil {
			return fail(round, "peer", err)
		}
		out.PeerToken = peerToken
		e.append(&out, run.Observer, network.NewTurn(network.RolePeer, text), log)

		verdict := e.detect(ctx, out.Transcript)
		if verdict.Concluded {
			out.Status = network.StatusConcluded
			out.Reason = verdict.Reason
			log.Debug("conversation concluded", "round", round, "reason", verdict.Reason)
			return out
		}

		if round == e.maxRounds-1 {
			break
		}

		if err := ctx.Err(); err != nil {
			return fail(round, "requester", err)
		}

		followUp, requesterToken, err := send(ctx, e, run.Requester, FollowUp(run.Content, out.Transcript), out.RequesterToken)
		if err != nil {
			return fail(round, "requester", err)
		}
		out.RequesterToken = requesterToken
		e.append(&out, run.Observer, network.NewTurn(network.RoleRequester, followUp), log)

		prompt = followUp
	}

	out.Status = network.StatusMaxRounds
	log.Debug("conversation reached round limit", "rounds", e.maxRounds)
	return out
}

// send posts text on one side of the conversation. The returned token has
// the same type as the one passed in, so the two sides cannot be crossed.
// A reply without a session id keeps the current token.
func send[T network.SessionToken](ctx context.Context, e *Engine, user *network.User, text string, token T) (string, T, error) {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	reply, err := e.sender.SendTurn(ctx, user, text, string(token))
	if err != nil {
		return "", token, err
	}
	if reply.SessionID == "" {
		return reply.Text, token, nil
	}
	return reply.Text, T(reply.SessionID), nil
}

func (e *Engine) detect(ctx context.Context, transcript network.Transcript) conclusion.Result {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.detector.Detect(ctx, transcript.Clone())
}

func (e *Engine) append(out *Outcome, obs Observer, turn network.Turn, log *slog.Logger) {
	out.Transcript = append(out.Transcript, turn)
	if obs == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("observer panicked", "role", turn.Role, "panic", r)
		}
	}()
	obs.TurnAppended(turn)
}

func userID(u *network.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
