package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/extract"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/reconcile"
)

var (
	addToolName    = "memory_add"
	addDescription = "Reconcile conversation messages into the memory layer. Extracts durable facts from the messages and adds, updates, or deletes memories in the given scope. Returns the operations that were applied."
)

// AddInput represents the input arguments for the memory_add tool.
type AddInput struct {
	UserID   string            `json:"user_id,omitempty" jsonschema:"the user the memories belong to"`
	AgentID  string            `json:"agent_id,omitempty" jsonschema:"optional agent narrowing the scope"`
	RunID    string            `json:"run_id,omitempty" jsonschema:"optional run or session narrowing the scope"`
	Messages []extract.Message `json:"messages" jsonschema:"the conversation messages to reconcile"`
}

// AddOutput represents the structured output of a memory add.
type AddOutput struct {
	BatchID   string   `json:"batch_id"`
	Committed []Change `json:"committed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
}

// Change summarizes one applied operation.
type Change struct {
	MemoryID   string `json:"memory_id"`
	Content    string `json:"content"`
	Version    int    `json:"version"`
	Tombstoned bool   `json:"tombstoned,omitempty"`
}

// handleAdd processes a memory add request via MCP.
func (s *Server) handleAdd(ctx context.Context, _ *mcp.CallToolRequest, input AddInput) (*mcp.CallToolResult, AddOutput, error) {
	scope := memory.Scope{UserID: input.UserID, AgentID: input.AgentID, RunID: input.RunID}
	if scope.IsZero() {
		return toolError("at least one of user_id, agent_id, run_id is required"), AddOutput{}, nil
	}
	if len(input.Messages) == 0 {
		return toolError("messages are required"), AddOutput{}, nil
	}

	s.config.Logger.Debug("MCP memory_add request",
		zap.String("scope", scope.Key()),
		zap.Int("messages", len(input.Messages)),
	)

	result, err := s.config.Engine.Reconcile(ctx, reconcile.Batch{
		Scope:    scope,
		Messages: input.Messages,
	})
	if err != nil {
		s.config.Logger.Error("MCP reconciliation failed", zap.Error(err))
		return toolError(fmt.Sprintf("Reconciliation failed: %v", err)), AddOutput{}, nil
	}

	committed := make([]Change, 0, len(result.Committed))
	for _, rec := range result.Committed {
		committed = append(committed, Change{
			MemoryID:   rec.ID,
			Content:    rec.Content,
			Version:    rec.Version,
			Tombstoned: rec.Tombstoned,
		})
	}

	output := AddOutput{
		BatchID:   result.BatchID,
		Committed: committed,
		Failed:    len(result.Failed),
		Skipped:   len(result.Skipped),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), AddOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// toolError builds an error tool result with a plain text message.
func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
