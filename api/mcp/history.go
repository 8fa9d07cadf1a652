package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/engram/pkg/ledger"
)

var (
	historyToolName    = "memory_history"
	historyDescription = "Retrieve the full lifecycle history of a memory. Returns every ADD, UPDATE, and DELETE event for the given memory id in order, reconstructing how its content evolved over time."
)

// HistoryInput represents the input arguments for the memory_history tool.
type HistoryInput struct {
	MemoryID string `json:"memory_id" jsonschema:"the memory id to retrieve history for"`
}

// HistoryOutput represents the structured output of a memory history lookup.
type HistoryOutput struct {
	MemoryID string          `json:"memory_id"`
	Events   []*ledger.Event `json:"events"`
	Count    int             `json:"count"`
}

// handleHistory processes a memory history request via MCP.
func (s *Server) handleHistory(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	if input.MemoryID == "" {
		return toolError("memory_id is required"), HistoryOutput{}, nil
	}

	events, err := s.config.Ledger.Events(ctx, input.MemoryID)
	if err != nil {
		return toolError(fmt.Sprintf("History lookup failed: %v", err)), HistoryOutput{}, nil
	}

	if events == nil {
		events = []*ledger.Event{}
	}

	output := HistoryOutput{
		MemoryID: input.MemoryID,
		Events:   events,
		Count:    len(events),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), HistoryOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
