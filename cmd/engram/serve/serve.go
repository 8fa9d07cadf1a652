// Package servecmder provides the serve command for running the memory API server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/api"
	"github.com/papercomputeco/engram/api/mcp"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/engram"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/reconcile/worker"
)

type ServeCommander struct {
	listen        string
	storeProvider string
	llmProvider   string
	debug         bool
	configDir     string
	noMCP         bool
	logger        *zap.Logger
}

// serveFlags defines the config-backed flags the serve command exposes.
// Binding happens in run after InitViper so the precedence chain is
// flag > env > config file > default.
var serveFlags = config.FlagSet{
	config.FlagAPIListen:     {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	config.FlagStoreProvider: {Name: "store", Shorthand: "s", ViperKey: "store.provider", Description: "Similarity store provider (sqlite-vec, qdrant, chroma, inmemory)"},
	config.FlagLLMProvider:   {Name: "llm", ViperKey: "llm.provider", Description: "LLM provider (ollama, openai, anthropic)"},
}

var serveFlagKeys = []string{config.FlagAPIListen, config.FlagStoreProvider, config.FlagLLMProvider}

const serveLongDesc string = `Run the engram memory API server.

The server exposes:
  POST /v1/reconcile              Reconcile conversation turns into memory
  GET  /v1/search                 Semantic search over a scope's memories
  GET  /v1/memories/:id           Fetch a single memory
  GET  /v1/memories/:id/history   Fetch a memory's full event history
  /mcp                            MCP tools (memory_add, memory_search, memory_history)

Configuration comes from .engram/config.toml, ENGRAM_* environment
variables, and flags, in ascending precedence.`

const serveShortDesc string = "Run the engram memory API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagStoreProvider, &cmder.storeProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagLLMProvider, &cmder.llmProvider)
	cmd.Flags().Bool("no-mcp", false, "Disable the MCP endpoint")

	return cmd
}

func (c *ServeCommander) run(cmd *cobra.Command) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	c.noMCP, _ = cmd.Flags().GetBool("no-mcp")

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)

	cfg := config.FromViper(v)
	listen := cfg.API.Listen

	ctx := context.Background()

	system, err := engram.New(ctx, cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer system.Close()

	pool, err := worker.NewPool(&worker.Config{
		Engine:     system.Engine,
		NumWorkers: cfg.Engine.NumWorkers,
		QueueSize:  cfg.Engine.QueueSize,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	deps := api.Deps{
		Engine:   system.Engine,
		Store:    system.Store,
		Ledger:   system.Ledger,
		Embedder: system.Embedder,
		Pool:     pool,
	}

	if !c.noMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Engine:   system.Engine,
			Store:    system.Store,
			Ledger:   system.Ledger,
			Embedder: system.Embedder,
			Logger:   c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		deps.MCP = mcpServer.Handler()
	}

	server, err := api.NewServer(api.Config{ListenAddr: listen}, deps, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	c.logger.Info("starting engram",
		zap.String("listen", listen),
		zap.String("store", cfg.Store.Provider),
		zap.String("ledger", cfg.Ledger.Provider),
		zap.String("llm", cfg.LLM.Provider),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		pool.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	// Stop accepting requests, then drain queued batches before the
	// deferred system.Close releases the drivers.
	if err := server.Shutdown(); err != nil {
		c.logger.Warn("API server shutdown failed", zap.Error(err))
	}
	pool.Close()

	return nil
}
