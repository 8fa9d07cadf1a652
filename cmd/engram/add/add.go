// Package addcmder provides the add command for reconciling conversation
// turns into the memory layer from the CLI.
package addcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/engram"
	"github.com/papercomputeco/engram/pkg/extract"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/reconcile"
)

type AddCommander struct {
	userID  string
	agentID string
	runID   string
	role    string
	logger  *zap.Logger
}

const addLongDesc string = `Reconcile conversation text into the memory layer.

Each argument is treated as one conversation message. Facts are extracted,
compared against the scope's existing memories, and added, updated, or
deleted accordingly.

Examples:
  engram add --user alice "I moved to Lisbon last month"
  engram add --user alice --agent support "Actually I prefer email over phone"`

const addShortDesc string = "Reconcile conversation turns into memory"

func NewAddCmd() *cobra.Command {
	cmder := &AddCommander{}

	cmd := &cobra.Command{
		Use:   "add [messages...]",
		Short: addShortDesc,
		Long:  addLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.logger = logger.NewLogger(debug)
			defer cmder.logger.Sync()
			return cmder.run(configDir, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User id component of the scope")
	cmd.Flags().StringVarP(&cmder.agentID, "agent", "a", "", "Agent id component of the scope")
	cmd.Flags().StringVarP(&cmder.runID, "run", "r", "", "Run id component of the scope")
	cmd.Flags().StringVar(&cmder.role, "role", "user", "Role attributed to the messages")

	return cmd
}

func (c *AddCommander) run(configDir string, args []string) error {
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

	messages := make([]extract.Message, 0, len(args))
	for _, arg := range args {
		messages = append(messages, extract.Message{Role: c.role, Content: arg})
	}

	result, err := system.Engine.Reconcile(ctx, reconcile.Batch{
		Scope:    scope,
		Messages: messages,
	})
	if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}

	fmt.Printf("Batch %s\n\n", result.BatchID)

	if len(result.Committed) == 0 && len(result.Failed) == 0 {
		fmt.Println("No memory changes.")
		return nil
	}

	for _, rec := range result.Committed {
		switch {
		case rec.Tombstoned:
			fmt.Printf("  DELETE %s  %q\n", rec.ID, rec.Content)
		case rec.Version == 1:
			fmt.Printf("  ADD    %s  %q\n", rec.ID, rec.Content)
		default:
			fmt.Printf("  UPDATE %s  %q (v%d)\n", rec.ID, rec.Content, rec.Version)
		}
	}

	for _, f := range result.Failed {
		fmt.Printf("  FAILED %q: %s\n", f.Fact, f.Reason)
	}

	for _, fact := range result.Skipped {
		fmt.Printf("  SKIPPED %q\n", fact)
	}

	return nil
}
