package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parley/pkg/network"
)

// MemberRequest registers a member together with their proxy credentials.
type MemberRequest struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Avatar       string     `json:"avatar,omitempty"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
}

// BroadcastRequest is the body of both broadcast endpoints.
type BroadcastRequest struct {
	RequesterID string `json:"requester_id"`
	Content     string `json:"content"`
}

// BroadcastResponse is the collect-mode broadcast result. Warning carries a
// failure to mark the request completed after every run finished.
type BroadcastResponse struct {
	RequestID string                    `json:"request_id"`
	Results   []network.BroadcastResult `json:"results"`
	Warning   string                    `json:"warning,omitempty"`
}

// AnalyzeRequest is the body of the analysis endpoint.
type AnalyzeRequest struct {
	Content string `json:"content"`
}

// SummaryResponse carries a request's summary.
type SummaryResponse struct {
	RequestID string `json:"request_id"`
	Summary   string `json:"summary"`
}

// ContinueRequest is the body of the manual continue endpoint.
type ContinueRequest struct {
	Message string `json:"message"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleListMembers(c *fiber.Ctx) error {
	members, err := s.svc.Conversations.Members(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(map[string]any{
		"count":   len(members),
		"members": members,
	})
}

func (s *Server) handleUpsertMember(c *fiber.Ctx) error {
	var body MemberRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.ID == "" {
		return s.fail(c, network.Invalid("id", "is required"))
	}
	if body.AccessToken == "" {
		return s.fail(c, network.Invalid("access_token", "is required"))
	}

	user := &network.User{
		ID:           body.ID,
		Name:         body.Name,
		Avatar:       body.Avatar,
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
	}
	if body.TokenExpiry != nil {
		user.TokenExpiry = *body.TokenExpiry
	}

	if err := s.svc.Store.UpsertUser(c.UserContext(), user); err != nil {
		return s.fail(c, network.Persistence("upsert member", err))
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	var body AnalyzeRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	analysis, err := s.svc.Analyzer.Analyze(c.UserContext(), body.Content)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(analysis)
}

func (s *Server) handleBroadcast(c *fiber.Ctx) error {
	var body BroadcastRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.UserContext()
	req, err := s.svc.CreateRequest(ctx, body.RequesterID, body.Content)
	if err != nil {
		return s.fail(c, err)
	}

	results, err := s.svc.Coordinator.Broadcast(ctx, req.ID, req.Content, body.RequesterID)
	if err != nil && results == nil {
		return s.fail(c, err)
	}

	resp := BroadcastResponse{RequestID: req.ID, Results: results}
	if err != nil {
		s.logger.Warn("broadcast finished with a request status failure", "request_id", req.ID, "error", err)
		resp.Warning = err.Error()
	}
	return c.JSON(resp)
}

func (s *Server) handleListRequests(c *fiber.Ctx) error {
	listings, err := s.svc.Conversations.Requests(c.UserContext(), c.Query("user_id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(map[string]any{
		"count":    len(listings),
		"requests": listings,
	})
}

func (s *Server) handleGetRequest(c *fiber.Ctx) error {
	detail, err := s.svc.Store.GetRequestWithConversations(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(detail)
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	convs, err := s.svc.Conversations.List(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(map[string]any{
		"count":         len(convs),
		"conversations": convs,
	})
}

func (s *Server) handleGetProgress(c *fiber.Ctx) error {
	snapshot, err := s.svc.Progress.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(snapshot)
}

func (s *Server) handleSummarize(c *fiber.Ctx) error {
	id := c.Params("id")
	text, err := s.svc.Summaries.Summarize(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(SummaryResponse{RequestID: id, Summary: text})
}

func (s *Server) handleRank(c *fiber.Ctx) error {
	ranking, err := s.svc.Matches.Rank(c.UserContext(), c.Params("id"), c.QueryBool("quick"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(ranking)
}

func (s *Server) handleGetSummary(c *fiber.Ctx) error {
	req, err := s.svc.Store.GetRequest(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if req.Summary == "" {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "request has no summary yet"})
	}
	return c.JSON(SummaryResponse{RequestID: req.ID, Summary: req.Summary})
}

func (s *Server) handleContinue(c *fiber.Ctx) error {
	var body ContinueRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := s.svc.Conversations.Continue(c.UserContext(), c.Params("id"), body.Message)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(result)
}

func (s *Server) handleComplete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.svc.Conversations.MarkCompleted(c.UserContext(), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(map[string]any{
		"conversation_id": id,
		"status":          network.StatusCompleted,
	})
}
