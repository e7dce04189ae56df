// Package cmd provides the CLI commands for bmsync.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/basic-memory/bmsync/internal/logging"
)

var debugMode bool

// NewRootCmd creates the root command for the bmsync CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bmsync",
		Short: "Sync a markdown knowledge base into a local graph and search index",
		Long: `bmsync reconciles a directory of markdown notes against a local
SQLite-backed knowledge graph and full-text search index.

Run 'bmsync sync' in a project directory to build or update the index,
'bmsync search' to query it, and 'bmsync status' to check its health.`,
	}

	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	root.AddCommand(newSyncCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func newLogger() *slog.Logger {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	logger, _, err := logging.Setup(cfg)
	if err != nil {
		return slog.Default()
	}
	return logger
}
