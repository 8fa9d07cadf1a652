package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/embeddings"
	"github.com/papercomputeco/engram/pkg/ledger"
	"github.com/papercomputeco/engram/pkg/reconcile"
	"github.com/papercomputeco/engram/pkg/reconcile/worker"
	"github.com/papercomputeco/engram/pkg/store"
)

// Deps holds the server's collaborators. The engine owns the write path;
// the store, ledger, and embedder serve the read paths directly.
type Deps struct {
	Engine   *reconcile.Engine
	Store    store.Driver
	Ledger   ledger.Driver
	Embedder embeddings.Embedder

	// Pool enables asynchronous reconciliation. Optional; without it the
	// reconcile endpoint always runs synchronously.
	Pool *worker.Pool

	// MCP is mounted under /mcp when set.
	MCP http.Handler
}

// Server is the API server for the engram memory layer.
type Server struct {
	config Config
	deps   Deps
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The collaborators are injected to allow sharing with other components.
func NewServer(config Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store driver is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("ledger driver is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("embedder is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		deps:   deps,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/reconcile", s.handleReconcile)
	app.Get("/v1/search", s.handleSearch)
	app.Get("/v1/memories/:id", s.handleGetMemory)
	app.Get("/v1/memories/:id/history", s.handleGetHistory)

	if deps.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(deps.MCP))
	}

	return s, nil
}

// App exposes the underlying fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
