package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/memory"
)

var (
	searchToolName    = "memory_search"
	searchDescription = "Search the memory layer using semantic search. Returns the memories in the given scope most relevant to the query text. Use this to recall persistent knowledge about a user before responding."
)

// SearchInput represents the input arguments for the memory_search tool.
type SearchInput struct {
	Query   string `json:"query" jsonschema:"the search query text to find relevant memories"`
	UserID  string `json:"user_id,omitempty" jsonschema:"the user whose memories to search"`
	AgentID string `json:"agent_id,omitempty" jsonschema:"optional agent narrowing the scope"`
	RunID   string `json:"run_id,omitempty" jsonschema:"optional run or session narrowing the scope"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	MemoryID string  `json:"memory_id"`
	Content  string  `json:"content"`
	Score    float32 `json:"score"`
	Version  int     `json:"version"`
}

// SearchOutput represents the output of the memory_search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	scope := memory.Scope{UserID: input.UserID, AgentID: input.AgentID, RunID: input.RunID}
	if scope.IsZero() {
		return toolError("at least one of user_id, agent_id, run_id is required"), SearchOutput{}, nil
	}

	// Default topK if not specified
	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	logger.Debug("MCP memory_search request",
		zap.String("query", input.Query),
		zap.String("scope", scope.Key()),
		zap.Int("topK", topK),
	)

	// Embed the query
	queryEmbedding, err := s.config.Embedder.Embed(ctx, input.Query)
	if err != nil {
		logger.Error("failed to embed query", zap.Error(err))
		return toolError(fmt.Sprintf("Failed to embed query: %v", err)), SearchOutput{}, nil
	}

	// Query the memory store
	matches, err := s.config.Store.Search(ctx, scope, queryEmbedding, topK)
	if err != nil {
		logger.Error("failed to query memory store", zap.Error(err))
		return toolError(fmt.Sprintf("Failed to query memory store: %v", err)), SearchOutput{}, nil
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, SearchResult{
			MemoryID: m.Record.ID,
			Content:  m.Record.Content,
			Score:    m.Score,
			Version:  m.Record.Version,
		})
	}

	output := SearchOutput{
		Query:   input.Query,
		Results: results,
		Count:   len(results),
	}

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", zap.Error(err))
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
