// Package historycmder provides the history command for inspecting a
// memory's lifecycle from the CLI.
package historycmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/engram"
	"github.com/papercomputeco/engram/pkg/ledger"
	"github.com/papercomputeco/engram/pkg/logger"
)

type HistoryCommander struct {
	logger *zap.Logger
}

const historyLongDesc string = `Show the full lifecycle history of a memory.

Prints every ADD, UPDATE, and DELETE event for the given memory id in order,
reconstructing how its content evolved.

Examples:
  engram history 4f7c2a9e-...`

const historyShortDesc string = "Show a memory's full lifecycle"

func NewHistoryCmd() *cobra.Command {
	cmder := &HistoryCommander{}

	cmd := &cobra.Command{
		Use:   "history <memory-id>",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.logger = logger.NewLogger(debug)
			defer cmder.logger.Sync()
			return cmder.run(configDir, args[0])
		},
	}

	return cmd
}

func (c *HistoryCommander) run(configDir, memoryID string) error {
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

	events, err := system.Ledger.Events(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	if len(events) == 0 {
		fmt.Println("No history for this memory.")
		return nil
	}

	for _, ev := range events {
		switch ev.Type {
		case ledger.EventAdd:
			fmt.Printf("%s  ADD     %q  (batch %s)\n",
				ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.NewContent, ev.Actor)
		case ledger.EventUpdate:
			fmt.Printf("%s  UPDATE  %q -> %q  (batch %s)\n",
				ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.PreviousContent, ev.NewContent, ev.Actor)
		case ledger.EventDelete:
			fmt.Printf("%s  DELETE  %q  (batch %s)\n",
				ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.PreviousContent, ev.Actor)
		}
	}

	return nil
}
