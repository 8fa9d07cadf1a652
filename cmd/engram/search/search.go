// Package searchcmder provides the search command for querying a scope's
// memories from the CLI.
package searchcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/engram"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/memory"
)

type SearchCommander struct {
	userID  string
	agentID string
	runID   string
	topK    int
	logger  *zap.Logger
}

const searchLongDesc string = `Search a scope's memories using semantic search.

The query is embedded and compared against the scope's active memories.
Tombstoned memories never appear in results.

Examples:
  engram search --user alice "where does she live"
  engram search --user alice --top-k 3 "coffee preferences"`

const searchShortDesc string = "Search a scope's memories"

func NewSearchCmd() *cobra.Command {
	cmder := &SearchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.logger = logger.NewLogger(debug)
			defer cmder.logger.Sync()
			return cmder.run(configDir, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User id component of the scope")
	cmd.Flags().StringVarP(&cmder.agentID, "agent", "a", "", "Agent id component of the scope")
	cmd.Flags().StringVarP(&cmder.runID, "run", "r", "", "Run id component of the scope")
	cmd.Flags().IntVarP(&cmder.topK, "top-k", "k", 5, "Number of results to return")

	return cmd
}

func (c *SearchCommander) run(configDir, query string) error {
	scope := memory.Scope{UserID: c.userID, AgentID: c.agentID, RunID: c.runID}
	if scope.IsZero() {
		return fmt.Errorf("at least one of --user, --agent, --run is required")
	}

	v, err := config.InitViper(configDir)
	if err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	cfg := config.FromViper(v)

	ctx := context.Background()

	system, err := engram.New(ctx, cfg, configDir, c.logger)
	if err != nil {
		return err
	}
	defer system.Close()

	embedding, err := system.Embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embedding query: %w", err)
	}

	matches, err := system.Store.Search(ctx, scope, embedding, c.topK)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(matches) == 0 {
		fmt.Println("No memories found.")
		return nil
	}

	for _, m := range matches {
		fmt.Printf("%.3f  %s  %q (v%d)\n", m.Score, m.Record.ID, m.Record.Content, m.Record.Version)
	}

	return nil
}
