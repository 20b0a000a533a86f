// Package proxychat talks to users' digital proxies over the event-streamed
// chat backend, one turn per call, threading the backend's session id so each
// side of a conversation keeps its own memory.
package proxychat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/sse"
	"github.com/papercomputeco/parley/pkg/utils"
)

const (
	chatStreamPath = "/api/secondme/chat/stream"

	// DefaultTimeout bounds a single chat turn, stream included.
	DefaultTimeout = 2 * time.Minute

	sessionEvent = "session"

	maxErrorBody = 4 * 1024
)

// Reply is the fully drained answer to one turn. SessionID is empty when
// the backend did not announce one.
type Reply struct {
	Text      string
	SessionID string
}

// Client posts chat turns to the proxy backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	trace      io.Writer
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string

	// Timeout bounds each turn. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RequestsPerSecond throttles outbound turns. Zero disables throttling.
	RequestsPerSecond float64

	// Trace, when set, receives every raw SSE line.
	Trace io.Writer

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(c ClientConfig) *Client {
	cl := &Client{
		baseURL:    strings.TrimRight(c.BaseURL, "/"),
		httpClient: c.HTTPClient,
		timeout:    c.Timeout,
		logger:     c.Logger,
		trace:      c.Trace,
	}
	if cl.httpClient == nil {
		cl.httpClient = &http.Client{}
	}
	if cl.timeout <= 0 {
		cl.timeout = DefaultTimeout
	}
	if cl.logger == nil {
		cl.logger = logger.Nop()
	}
	if c.RequestsPerSecond > 0 {
		cl.limiter = rate.NewLimiter(rate.Limit(c.RequestsPerSecond), 1)
	}
	return cl
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
}

type chunkPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Choices   []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Content string `json:"content,omitempty"`
}

// PostTurn sends one message with accessToken and drains the reply stream.
// A 401 or 403 is an *network.AuthError; every other failure, timeouts
// included, is a *network.ChatBackendError. Nothing is retried.
func (c *Client) PostTurn(ctx context.Context, accessToken, message, sessionID string) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Reply{}, &network.ChatBackendError{Detail: "rate limiter", Err: err}
		}
	}

	body, err := json.Marshal(chatRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatStreamPath, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", utils.UserAgent())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{}, &network.ChatBackendError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		backendErr := &network.ChatBackendError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return Reply{}, &network.AuthError{Err: backendErr}
		}
		return Reply{}, backendErr
	}

	reply, err := c.drain(resp.Body)
	if err != nil {
		return Reply{}, &network.ChatBackendError{Detail: "reading reply stream", Err: err}
	}
	if reply.SessionID == "" {
		reply.SessionID = sessionID
	}

	c.logger.Debug("chat turn finished",
		"new_session", sessionID == "",
		"reply_chars", len(reply.Text),
		"elapsed", time.Since(start),
	)
	return reply, nil
}

// drain reads the stream to the end and concatenates every content fragment.
func (c *Client) drain(body io.Reader) (Reply, error) {
	var (
		reply  Reply
		text   strings.Builder
		reader *sse.Reader
	)
	if c.trace != nil {
		reader = sse.NewTeeReader(body, c.trace)
	} else {
		reader = sse.NewReader(body)
	}

	for {
		ev, err := reader.Next()
		if err != nil {
			return Reply{}, err
		}
		if ev == nil || ev.IsDone() {
			break
		}

		if ev.Type == sessionEvent {
			var p sessionPayload
			if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
				c.logger.Debug("ignoring malformed session event", "data", ev.Data)
				continue
			}
			reply.SessionID = p.SessionID
			continue
		}

		var chunk chunkPayload
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			c.logger.Debug("ignoring malformed chat fragment", "data", ev.Data)
			continue
		}
		if chunk.SessionID != "" && reply.SessionID == "" {
			reply.SessionID = chunk.SessionID
		}
		for _, choice := range chunk.Choices {
			text.WriteString(choice.Delta.Content)
		}
		text.WriteString(chunk.Content)
	}

	reply.Text = text.String()
	return reply, nil
}
