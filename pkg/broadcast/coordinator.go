// Package broadcast fans a request out to the network: one engine run per
// peer, concurrently, with every peer's failure kept to that peer.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/parley/pkg/engine"
	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
)

// eventBuffer is the capacity of the channel between peer tasks and the
// single sink writer.
const eventBuffer = 64

// Runner drives one conversation. *engine.Engine implements it.
type Runner interface {
	Run(ctx context.Context, run engine.Run) engine.Outcome
}

// Store is the part of storage.Driver the coordinator uses.
type Store interface {
	PeerLister
	GetUser(ctx context.Context, id string) (*network.User, error)
	GetRequest(ctx context.Context, id string) (*network.Request, error)
	UpdateRequestStatus(ctx context.Context, id string, status network.RequestStatus) error
	CreateConversation(ctx context.Context, conv *network.Conversation) error
}

// Config configures a Coordinator.
type Config struct {
	Store  Store
	Runner Runner

	// Selector defaults to StoreSelector over Store with Limit.
	Selector PeerSelector

	// Limit caps both the peer pool and concurrent runs. Defaults to 10.
	Limit int

	// Progress receives the events of every broadcast, streamed or not.
	Progress Sink

	// Events announces finalized conversations when set.
	Events Enqueuer

	Logger *slog.Logger
}

// Coordinator runs broadcasts.
type Coordinator struct {
	store    Store
	runner   Runner
	selector PeerSelector
	limit    int
	progress Sink
	events   Enqueuer
	logger   *slog.Logger
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errors.New("broadcast requires a store")
	}
	if cfg.Runner == nil {
		return nil, errors.New("broadcast requires a conversation runner")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultPeerLimit
	}
	if cfg.Selector == nil {
		cfg.Selector = StoreSelector{Store: cfg.Store, Limit: cfg.Limit}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Coordinator{
		store:    cfg.Store,
		runner:   cfg.Runner,
		selector: cfg.Selector,
		limit:    cfg.Limit,
		progress: cfg.Progress,
		events:   cfg.Events,
		logger:   cfg.Logger,
	}, nil
}

// Broadcast runs the request against every selected peer and returns one
// result per peer, in selection order. Peer failures are reported in the
// results; the error is reserved for invalid input and request-level
// persistence failures. A failure to mark the request completed is returned
// as a PersistenceError together with the full results.
func (c *Coordinator) Broadcast(ctx context.Context, requestID, content, requesterID string) ([]network.BroadcastResult, error) {
	return c.run(ctx, requestID, content, requesterID, nil)
}

// BroadcastWithStream is Broadcast that also reports progress to sink.
func (c *Coordinator) BroadcastWithStream(ctx context.Context, requestID, content, requesterID string, sink Sink) error {
	if sink == nil {
		return network.Invalid("sink", "is required")
	}
	_, err := c.run(ctx, requestID, content, requesterID, sink)
	return err
}

func validate(requestID, content, requesterID string) error {
	switch {
	case strings.TrimSpace(requestID) == "":
		return network.Invalid("request_id", "is required")
	case strings.TrimSpace(content) == "":
		return network.Invalid("content", "is required")
	case strings.TrimSpace(requesterID) == "":
		return network.Invalid("requester_id", "is required")
	}
	return nil
}

func (c *Coordinator) run(ctx context.Context, requestID, content, requesterID string, sink Sink) ([]network.BroadcastResult, error) {
	if err := validate(requestID, content, requesterID); err != nil {
		return nil, err
	}

	requester, err := c.store.GetUser(ctx, requesterID)
	if storage.IsNotFound(err) {
		return nil, network.Invalid("requester_id", "unknown user "+requesterID)
	}
	if err != nil {
		return nil, network.Persistence("load requester", err)
	}

	if _, err := c.store.GetRequest(ctx, requestID); err != nil {
		if storage.IsNotFound(err) {
			return nil, err
		}
		return nil, network.Persistence("load request", err)
	}

	selected, err := c.selector.SelectPeers(ctx, requester)
	if err != nil {
		return nil, network.Persistence("select peers", err)
	}
	peers := boundPool(selected, requester.ID, c.limit)

	log := c.logger.With("request_id", requestID)
	log.Info("broadcast started", "peers", len(peers))

	if err := c.store.UpdateRequestStatus(ctx, requestID, network.RequestBroadcasting); err != nil {
		return nil, network.Persistence("mark request broadcasting", err)
	}

	em := newEmitter(ctx, NewMultiSink(sink, c.progress), log)

	results := make([]network.BroadcastResult, len(peers))
	var g errgroup.Group
	g.SetLimit(c.limit)
	for i, peer := range peers {
		g.Go(func() error {
			results[i] = c.runPeer(ctx, requestID, content, requester, peer, em, log)
			return nil
		})
	}
	_ = g.Wait()

	// Bookkeeping writes are not cancelled with the broadcast so work that
	// already finished is never lost.
	statusErr := c.store.UpdateRequestStatus(context.WithoutCancel(ctx), requestID, network.RequestCompleted)

	em.emitAlways(Event{Kind: EventDone, RequestID: requestID, Total: len(peers)})
	em.close()

	succeeded := 0
	for _, r := range results {
		if r.Status == network.ResultSuccess {
			succeeded++
		}
	}
	log.Info("broadcast finished", "peers", len(peers), "succeeded", succeeded)

	if statusErr != nil {
		return results, network.Persistence("mark request completed", statusErr)
	}
	return results, nil
}

// runPeer never panics and never returns an error: every failure becomes a
// failed result.
func (c *Coordinator) runPeer(
	ctx context.Context,
	requestID, content string,
	requester, peer *network.User,
	em *emitter,
	log *slog.Logger,
) (result network.BroadcastResult) {
	correlationID := uuid.NewString()
	peerName := peer.DisplayName()
	log = log.With("peer_id", peer.ID, "correlation_id", correlationID)

	result = network.BroadcastResult{PeerID: peer.ID, PeerName: peerName}

	defer func() {
		if r := recover(); r != nil {
			log.Error("peer task panicked", "panic", r)
			result.Status = network.ResultFailed
			result.Error = fmt.Sprintf("internal error: %v", r)
			em.emitAlways(Event{Kind: EventError, RequestID: requestID, CorrelationID: correlationID,
				PeerID: peer.ID, PeerName: peerName, ConversationID: result.ConversationID, Error: result.Error})
		}
	}()

	em.emitAlways(Event{Kind: EventConversationStart, RequestID: requestID, CorrelationID: correlationID,
		PeerID: peer.ID, PeerName: peerName})

	observer := engine.ObserverFunc(func(turn network.Turn) {
		em.emit(Event{Kind: EventMessage, RequestID: requestID, CorrelationID: correlationID,
			PeerID: peer.ID, PeerName: peerName, Role: turn.Role, Text: turn.Text})
	})

	out := c.runner.Run(ctx, engine.Run{Requester: requester, Peer: peer, Content: content, Observer: observer})

	if last, ok := out.Transcript.LastOf(network.RolePeer); ok {
		result.Reply = last.Text
	}
	result.ConversationStatus = out.Status
	result.Reason = out.Reason

	var persistErr error
	if out.Status != network.StatusError || len(out.Transcript) > 0 {
		conv := &network.Conversation{
			RequestID:      requestID,
			PeerID:         peer.ID,
			Transcript:     out.Transcript,
			RequesterToken: out.RequesterToken,
			PeerToken:      out.PeerToken,
			Status:         out.Status,
			Reason:         out.Reason,
		}
		persistErr = c.store.CreateConversation(context.WithoutCancel(ctx), conv)
		if persistErr == nil {
			result.ConversationID = conv.ID
			if c.events != nil {
				c.events.Enqueue(eventstream.NewConversationFinalized(conv))
			}
		}
	}

	switch {
	case persistErr != nil:
		err := network.Persistence("save conversation", persistErr)
		log.Error("conversation not saved", "error", err)
		result.Status = network.ResultFailed
		result.Error = err.Error()
	case out.Status == network.StatusError:
		result.Status = network.ResultFailed
		result.Error = errorText(out.Err)
	default:
		result.Status = network.ResultSuccess
	}

	if result.Status == network.ResultSuccess {
		em.emitAlways(Event{Kind: EventConversationEnd, RequestID: requestID, CorrelationID: correlationID,
			ConversationID: result.ConversationID, PeerID: peer.ID, PeerName: peerName,
			Status: out.Status, Reason: out.Reason})
	} else {
		em.emitAlways(Event{Kind: EventError, RequestID: requestID, CorrelationID: correlationID,
			ConversationID: result.ConversationID, PeerID: peer.ID, PeerName: peerName,
			Status: out.Status, Error: result.Error})
	}

	log.Debug("peer finished", "status", result.Status, "conversation_status", out.Status, "turns", len(out.Transcript))
	return result
}

func errorText(err error) string {
	if err == nil {
		return "conversation failed"
	}
	return err.Error()
}

// emitter serializes every event of one broadcast through a single writer
// goroutine.
type emitter struct {
	ctx    context.Context
	sink   Sink
	active bool
	ch     chan queued
	done   chan struct{}
	logger *slog.Logger
}

type queued struct {
	event Event

	// always marks lifecycle events, which still reach the sinks after the
	// broadcast is cancelled.
	always bool
}

// lateWriteTimeout bounds a lifecycle write made after cancellation.
const lateWriteTimeout = 5 * time.Second

func newEmitter(ctx context.Context, sink *MultiSink, log *slog.Logger) *emitter {
	em := &emitter{
		ctx:    ctx,
		sink:   sink,
		active: sink.Len() > 0,
		ch:     make(chan queued, eventBuffer),
		done:   make(chan struct{}),
		logger: log,
	}
	if em.active {
		go em.write()
	} else {
		close(em.done)
	}
	return em
}

func (em *emitter) write() {
	defer close(em.done)

	closed := false
	for q := range em.ch {
		if closed {
			continue
		}
		event := q.event
		err := em.writeOne(q)
		switch {
		case errors.Is(err, ErrSinkClosed):
			em.logger.Debug("sink closed, dropping remaining events", "type", event.Kind)
			closed = true
		case err != nil:
			em.logger.Warn("progress event not delivered", "type", event.Kind, "error", err)
		}
	}
}

func (em *emitter) writeOne(q queued) error {
	if !q.always || em.ctx.Err() == nil {
		return em.sink.Write(em.ctx, q.event)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(em.ctx), lateWriteTimeout)
	defer cancel()
	return em.sink.Write(ctx, q.event)
}

// emit enqueues a message event, giving up when the broadcast is cancelled.
func (em *emitter) emit(event Event) {
	if !em.active {
		return
	}
	event.EmittedAt = time.Now().UTC()
	select {
	case em.ch <- queued{event: event}:
	case <-em.ctx.Done():
	}
}

// emitAlways enqueues an event that must not be skipped. The writer drains
// until close, so this only waits on the sink itself.
func (em *emitter) emitAlways(event Event) {
	if !em.active {
		return
	}
	event.EmittedAt = time.Now().UTC()
	em.ch <- queued{event: event, always: true}
}

func (em *emitter) close() {
	close(em.ch)
	<-em.done
}
