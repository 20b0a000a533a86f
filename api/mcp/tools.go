package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/parley/pkg/analyzer"
	"github.com/papercomputeco/parley/pkg/matching"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/utils"
)

const lastReplyRunes = 200

var (
	broadcastToolName    = "broadcast"
	broadcastDescription = "Post a request on behalf of a network member and let their proxy negotiate with up to ten peers' proxies. Blocks until every negotiation has finished and returns one result per peer."

	summarizeToolName    = "summarize"
	summarizeDescription = "Summarize every negotiation of a finished request into a short report and store it on the request."

	listConversationsToolName    = "list_conversations"
	listConversationsDescription = "List the negotiations of a request with each peer's status and latest reply."

	listRequestsToolName    = "list_requests"
	listRequestsDescription = "List posted requests newest first, with the requester and how many negotiations reached an outcome. Optionally only one member's requests."

	rankOffersToolName    = "rank_offers"
	rankOffersDescription = "Rank the peers of a negotiated request by how well their replies meet it, best first, with a score from 0 to 100, highlights and concerns. Set quick to score by keyword overlap without a model."

	analyzeToolName    = "analyze_request"
	analyzeDescription = "Extract the category, requirements, constraints and matching tags of a free-form request, and suggest follow-up questions when it is too vague."
)

// BroadcastInput is the input of the broadcast tool.
type BroadcastInput struct {
	RequesterID string `json:"requester_id" jsonschema:"id of the member posting the request"`
	Content     string `json:"content" jsonschema:"the request in natural language"`
}

// BroadcastOutput is the output of the broadcast tool.
type BroadcastOutput struct {
	RequestID string                    `json:"request_id"`
	Results   []network.BroadcastResult `json:"results"`
	Warning   string                    `json:"warning,omitempty"`
}

// RequestInput names a request.
type RequestInput struct {
	RequestID string `json:"request_id" jsonschema:"id of the request"`
}

// SummarizeOutput is the output of the summarize tool.
type SummarizeOutput struct {
	RequestID string `json:"request_id"`
	Summary   string `json:"summary"`
}

// ConversationSummary is one row of the list_conversations output.
type ConversationSummary struct {
	ID        string         `json:"id"`
	PeerID    string         `json:"peer_id"`
	PeerName  string         `json:"peer_name"`
	Status    network.Status `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Turns     int            `json:"turns"`
	LastReply string         `json:"last_reply,omitempty"`
}

// ListConversationsOutput is the output of the list_conversations tool.
type ListConversationsOutput struct {
	RequestID     string                `json:"request_id"`
	Conversations []ConversationSummary `json:"conversations"`
	Count         int                   `json:"count"`
}

// ListRequestsInput is the input of the list_requests tool.
type ListRequestsInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"only list this member's requests"`
}

// ListRequestsOutput is the output of the list_requests tool.
type ListRequestsOutput struct {
	Requests []storage.RequestListing `json:"requests"`
	Count    int                      `json:"count"`
}

// RankOffersInput is the input of the rank_offers tool.
type RankOffersInput struct {
	RequestID string `json:"request_id" jsonschema:"id of the request"`
	Quick     bool   `json:"quick,omitempty" jsonschema:"score by keyword overlap instead of asking the model"`
}

// AnalyzeInput is the input of the analyze_request tool.
type AnalyzeInput struct {
	Content string `json:"content" jsonschema:"the request in natural language"`
}

func (s *Server) handleBroadcast(ctx context.Context, _ *mcp.CallToolRequest, input BroadcastInput) (*mcp.CallToolResult, BroadcastOutput, error) {
	log := s.config.Logger
	log.Debug("MCP broadcast request", "requester_id", input.RequesterID)

	req, err := s.config.Requests.CreateRequest(ctx, input.RequesterID, input.Content)
	if err != nil {
		return toolError("Failed to create request", err), BroadcastOutput{}, nil
	}

	results, err := s.config.Broadcaster.Broadcast(ctx, req.ID, req.Content, input.RequesterID)
	if err != nil && results == nil {
		log.Error("broadcast failed", "request_id", req.ID, "error", err)
		return toolError("Failed to broadcast", err), BroadcastOutput{}, nil
	}

	output := BroadcastOutput{RequestID: req.ID, Results: results}
	if err != nil {
		output.Warning = err.Error()
	}
	return structured(output)
}

func (s *Server) handleSummarize(ctx context.Context, _ *mcp.CallToolRequest, input RequestInput) (*mcp.CallToolResult, SummarizeOutput, error) {
	text, err := s.config.Summarizer.Summarize(ctx, input.RequestID)
	if err != nil {
		s.config.Logger.Error("summarize failed", "request_id", input.RequestID, "error", err)
		return toolError("Failed to summarize", err), SummarizeOutput{}, nil
	}
	return structured(SummarizeOutput{RequestID: input.RequestID, Summary: text})
}

func (s *Server) handleListConversations(ctx context.Context, _ *mcp.CallToolRequest, input RequestInput) (*mcp.CallToolResult, ListConversationsOutput, error) {
	convs, err := s.config.Conversations.List(ctx, input.RequestID)
	if err != nil {
		return toolError("Failed to list conversations", err), ListConversationsOutput{}, nil
	}

	rows := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		row := ConversationSummary{
			ID:       c.ID,
			PeerID:   c.PeerID,
			PeerName: c.PeerName,
			Status:   c.Status,
			Reason:   c.Reason,
			Turns:    len(c.Transcript),
		}
		if last, ok := c.Transcript.LastOf(network.RolePeer); ok {
			row.LastReply = utils.Truncate(last.Text, lastReplyRunes)
		}
		rows = append(rows, row)
	}

	return structured(ListConversationsOutput{
		RequestID:     input.RequestID,
		Conversations: rows,
		Count:         len(rows),
	})
}

func (s *Server) handleListRequests(ctx context.Context, _ *mcp.CallToolRequest, input ListRequestsInput) (*mcp.CallToolResult, ListRequestsOutput, error) {
	listings, err := s.config.Conversations.Requests(ctx, input.UserID)
	if err != nil {
		return toolError("Failed to list requests", err), ListRequestsOutput{}, nil
	}
	return structured(ListRequestsOutput{Requests: listings, Count: len(listings)})
}

func (s *Server) handleRankOffers(ctx context.Context, _ *mcp.CallToolRequest, input RankOffersInput) (*mcp.CallToolResult, matching.Ranking, error) {
	ranking, err := s.config.Ranker.Rank(ctx, input.RequestID, input.Quick)
	if err != nil {
		s.config.Logger.Error("rank offers failed", "request_id", input.RequestID, "error", err)
		return toolError("Failed to rank offers", err), matching.Ranking{}, nil
	}
	return structured(*ranking)
}

func (s *Server) handleAnalyze(ctx context.Context, _ *mcp.CallToolRequest, input AnalyzeInput) (*mcp.CallToolResult, analyzer.Analysis, error) {
	analysis, err := s.config.Analyzer.Analyze(ctx, input.Content)
	if err != nil {
		return toolError("Failed to analyze request", err), analyzer.Analysis{}, nil
	}
	return structured(*analysis)
}

// structured returns output both as structured content and, for clients
// that only read text, as serialized JSON.
func structured[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return toolError("Failed to serialize result", err), zero, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func toolError(msg string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", msg, err)},
		},
	}
}
