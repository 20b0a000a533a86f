package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parley/api/mcp"
	"github.com/papercomputeco/parley/pkg/app"
)

// Server is the parley API server.
type Server struct {
	config Config
	svc    *app.App
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server over the services of a.
func NewServer(config Config, a *app.App, logger *slog.Logger) (*Server, error) {
	fiberApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		svc:    a,
		logger: logger,
		app:    fiberApp,
	}

	fiberApp.Get("/ping", s.handlePing)

	fiberApp.Get("/members", s.handleListMembers)
	fiberApp.Post("/members", s.handleUpsertMember)

	fiberApp.Post("/analyze", s.handleAnalyze)

	fiberApp.Get("/requests", s.handleListRequests)
	fiberApp.Post("/requests", s.handleBroadcast)
	fiberApp.Post("/requests/stream", s.handleBroadcastStream)
	fiberApp.Get("/requests/:id", s.handleGetRequest)
	fiberApp.Get("/requests/:id/conversations", s.handleListConversations)
	fiberApp.Get("/requests/:id/progress", s.handleGetProgress)
	fiberApp.Post("/requests/:id/summary", s.handleSummarize)
	fiberApp.Get("/requests/:id/summary", s.handleGetSummary)
	fiberApp.Post("/requests/:id/rank", s.handleRank)

	fiberApp.Post("/conversations/:id/continue", s.handleContinue)
	fiberApp.Post("/conversations/:id/complete", s.handleComplete)

	if !config.DisableMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Requests:      a,
			Broadcaster:   a.Coordinator,
			Summarizer:    a.Summaries,
			Conversations: a.Conversations,
			Analyzer:      a.Analyzer,
			Ranker:        a.Matches,
			Logger:        logger.With("component", "mcp"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating MCP server: %w", err)
		}
		handler := adaptor.HTTPHandler(mcpServer.Handler())
		fiberApp.All("/mcp", handler)
		fiberApp.All("/mcp/*", handler)
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
