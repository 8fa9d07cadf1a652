package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/extract"
	"github.com/papercomputeco/engram/pkg/ledger"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/reconcile"
	"github.com/papercomputeco/engram/pkg/reconcile/worker"
	"github.com/papercomputeco/engram/pkg/store"
)

const defaultSearchLimit = 10

// ErrorResponse is the JSON error body returned by every handler.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ReconcileRequest is the body of POST /v1/reconcile.
type ReconcileRequest struct {
	Scope    memory.Scope      `json:"scope"`
	Messages []extract.Message `json:"messages"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Async queues the batch on the worker pool and returns immediately.
	Async bool `json:"async,omitempty"`
}

// SearchResponse is the body of GET /v1/search.
type SearchResponse struct {
	Query   string        `json:"query"`
	Results []SearchMatch `json:"results"`
	Count   int           `json:"count"`
}

// SearchMatch is one search hit.
type SearchMatch struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Score     float32           `json:"score"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// HistoryResponse is the body of GET /v1/memories/:id/history.
type HistoryResponse struct {
	MemoryID string          `json:"memory_id"`
	Events   []*ledger.Event `json:"events"`
	Count    int             `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleReconcile ingests a batch of conversation turns. Synchronous by
// default; with async set the batch is queued and a 202 returned.
func (s *Server) handleReconcile(c *fiber.Ctx) error {
	var req ReconcileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Scope.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "scope requires at least one of user_id, agent_id, run_id"})
	}
	if len(req.Messages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "messages are required"})
	}

	batch := reconcile.Batch{
		Scope:    req.Scope,
		Messages: req.Messages,
		Metadata: req.Metadata,
	}

	if req.Async {
		if s.deps.Pool == nil {
			return c.Status(fiber.StatusNotImplemented).JSON(ErrorResponse{Error: "async reconciliation is not enabled"})
		}
		if !s.deps.Pool.Enqueue(worker.Job{Batch: batch}) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "reconciliation queue is full"})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
	}

	result, err := s.deps.Engine.Reconcile(c.Context(), batch)
	if err != nil {
		s.logger.Error("reconciliation failed",
			zap.String("scope", req.Scope.Key()),
			zap.Error(err),
		)

		switch {
		case errors.Is(err, memory.ErrEmptyScope):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		case errors.Is(err, extract.ErrExtraction):
			return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
		}
	}

	return c.JSON(result)
}

// handleSearch runs a semantic search over a scope's active memories.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query parameter required"})
	}

	scope := memory.Scope{
		UserID:  c.Query("user_id"),
		AgentID: c.Query("agent_id"),
		RunID:   c.Query("run_id"),
	}
	if scope.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "scope requires at least one of user_id, agent_id, run_id"})
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "limit must be a positive integer"})
		}
		limit = n
	}

	embedding, err := s.deps.Embedder.Embed(c.Context(), query)
	if err != nil {
		s.logger.Error("failed to embed query", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "failed to embed query"})
	}

	matches, err := s.deps.Store.Search(c.Context(), scope, embedding, limit)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "search failed"})
	}

	results := make([]SearchMatch, 0, len(matches))
	for _, m := range matches {
		results = append(results, SearchMatch{
			ID:        m.Record.ID,
			Content:   m.Record.Content,
			Score:     m.Score,
			Metadata:  m.Record.Metadata,
			Version:   m.Record.Version,
			CreatedAt: m.Record.CreatedAt,
			UpdatedAt: m.Record.UpdatedAt,
		})
	}

	return c.JSON(SearchResponse{
		Query:   query,
		Results: results,
		Count:   len(results),
	})
}

// handleGetMemory returns a single memory record by id, tombstoned included.
func (s *Server) handleGetMemory(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	rec, err := s.deps.Store.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "memory not found"})
		}
		s.logger.Error("failed to get memory", zap.String("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get memory"})
	}

	return c.JSON(rec)
}

// handleGetHistory returns the full event sequence for a memory in append order.
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	events, err := s.deps.Ledger.Events(c.Context(), id)
	if err != nil {
		s.logger.Error("failed to read history", zap.String("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to read history"})
	}

	return c.JSON(HistoryResponse{
		MemoryID: id,
		Events:   events,
		Count:    len(events),
	})
}
