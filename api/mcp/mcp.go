// Package mcp exposes parley's request operations as MCP tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/parley/pkg/analyzer"
	"github.com/papercomputeco/parley/pkg/matching"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/utils"
)

// RequestCreator stores new requests. *app.App implements it.
type RequestCreator interface {
	CreateRequest(ctx context.Context, requesterID, content string) (*network.Request, error)
}

// Broadcaster runs collect-mode broadcasts.
type Broadcaster interface {
	Broadcast(ctx context.Context, requestID, content, requesterID string) ([]network.BroadcastResult, error)
}

// Summarizer writes request summaries.
type Summarizer interface {
	Summarize(ctx context.Context, requestID string) (string, error)
}

// ConversationLister lists requests and their conversations.
type ConversationLister interface {
	List(ctx context.Context, requestID string) ([]storage.ConversationDetail, error)
	Requests(ctx context.Context, userID string) ([]storage.RequestListing, error)
}

// RequestAnalyzer reads a request into structured requirements.
type RequestAnalyzer interface {
	Analyze(ctx context.Context, content string) (*analyzer.Analysis, error)
}

// OfferRanker ranks the offers peers made for a request.
type OfferRanker interface {
	Rank(ctx context.Context, requestID string, quick bool) (*matching.Ranking, error)
}

type Config struct {
	Requests      RequestCreator
	Broadcaster   Broadcaster
	Summarizer    Summarizer
	Conversations ConversationLister

	// Analyzer enables the analyze_request tool when set.
	Analyzer RequestAnalyzer

	// Ranker enables the rank_offers tool when set.
	Ranker OfferRanker

	// Noop serves an MCP server without tools.
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates an MCP server with parley's tools registered.
func NewServer(c Config) (*Server, error) {
	s := &Server{config: c}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "parley",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Requests == nil {
			return nil, errors.New("request creator is required")
		}
		if c.Broadcaster == nil {
			return nil, errors.New("broadcaster is required")
		}
		if c.Summarizer == nil {
			return nil, errors.New("summarizer is required")
		}
		if c.Conversations == nil {
			return nil, errors.New("conversation lister is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        broadcastToolName,
			Description: broadcastDescription,
		}, s.handleBroadcast)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        summarizeToolName,
			Description: summarizeDescription,
		}, s.handleSummarize)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        listConversationsToolName,
			Description: listConversationsDescription,
		}, s.handleListConversations)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        listRequestsToolName,
			Description: listRequestsDescription,
		}, s.handleListRequests)

		if c.Analyzer != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        analyzeToolName,
				Description: analyzeDescription,
			}, s.handleAnalyze)
		}

		if c.Ranker != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        rankOffersToolName,
				Description: rankOffersDescription,
			}, s.handleRankOffers)
		}
	}

	s.mcpServer = mcpServer

	// Stateless streamable HTTP handler.
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
