// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	addcmder "github.com/papercomputeco/engram/cmd/engram/add"
	configcmder "github.com/papercomputeco/engram/cmd/engram/config"
	historycmder "github.com/papercomputeco/engram/cmd/engram/history"
	searchcmder "github.com/papercomputeco/engram/cmd/engram/search"
	servecmder "github.com/papercomputeco/engram/cmd/engram/serve"
	versioncmder "github.com/papercomputeco/engram/cmd/version"
)

const engramLongDesc string = `Engram is a memory layer for conversational agents.

It extracts durable facts from conversations, reconciles them against what is
already known, and keeps a full audit history of how every memory evolved.

Common commands:
  engram serve                  Run the memory API server
  engram add                    Reconcile conversation turns into memory
  engram search                 Search a scope's memories
  engram history                Show a memory's full lifecycle
  engram config                 Manage persistent configuration`

const engramShortDesc string = "Engram - Agent Memory"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .engram/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(addcmder.NewAddCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
