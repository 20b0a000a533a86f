package api

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parley/pkg/broadcast"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/sse"
)

// SSE event types sent besides the broadcast event kinds.
const (
	streamEventRequest = "request"
	streamEventFailed  = "broadcast_error"
)

// handleBroadcastStream creates the request and streams the broadcast's
// progress events as SSE. The response is a chunked pipe so each event
// reaches the socket as soon as it is written.
func (s *Server) handleBroadcastStream(c *fiber.Ctx) error {
	var body BroadcastRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	// fasthttp recycles the request context when the handler returns.
	ctx := context.WithoutCancel(c.UserContext())

	req, err := s.svc.CreateRequest(ctx, body.RequesterID, body.Content)
	if err != nil {
		return s.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	pr, pw := io.Pipe()
	go s.streamBroadcast(ctx, req, body.RequesterID, pw)

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

// streamBroadcast runs the broadcast until it finishes or the client goes
// away, whichever comes first. Conversations that already ended stay stored.
func (s *Server) streamBroadcast(ctx context.Context, req *network.Request, requesterID string, pw *io.PipeWriter) {
	defer pw.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := newSSESink(pw, func() {
		s.logger.Info("stream client gone, cancelling broadcast", "request_id", req.ID)
		cancel()
	})
	defer sink.Close()

	if err := sink.send(streamEventRequest, map[string]string{"request_id": req.ID}); err != nil {
		s.logger.Debug("stream client gone before broadcast", "request_id", req.ID)
	}

	err := s.svc.Coordinator.BroadcastWithStream(ctx, req.ID, req.Content, requesterID, sink)
	if err != nil {
		s.logger.Warn("streaming broadcast failed", "request_id", req.ID, "error", err)
		_ = sink.send(streamEventFailed, ErrorResponse{Error: err.Error()})
	}
}

// sseSink frames broadcast events onto an SSE stream. A failed write means
// the client went away: the sink calls gone once and then reports
// broadcast.ErrSinkClosed.
type sseSink struct {
	mu     sync.Mutex
	w      *sse.Writer
	seq    int
	closed bool
	gone   func()
}

var _ broadcast.Sink = (*sseSink)(nil)

func newSSESink(w io.Writer, gone func()) *sseSink {
	return &sseSink{w: sse.NewWriter(w), gone: gone}
}

func (s *sseSink) Write(_ context.Context, event broadcast.Event) error {
	return s.send(string(event.Kind), event)
}

func (s *sseSink) send(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return broadcast.ErrSinkClosed
	}
	s.seq++
	if err := s.w.Write(sse.Event{ID: strconv.Itoa(s.seq), Type: eventType, Data: string(data)}); err != nil {
		s.closed = true
		if s.gone != nil {
			s.gone()
		}
		return broadcast.ErrSinkClosed
	}
	return nil
}

func (s *sseSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	_ = s.w.Close()
}
