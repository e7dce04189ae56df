package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/basic-memory/bmsync/internal/config"
	"github.com/basic-memory/bmsync/internal/output"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .bmconfig.yaml in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd)
		},
	}
	return cmd
}

func runInit(cmd *cobra.Command) error {
	w := output.New(cmd.OutOrStdout())

	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}

	path := filepath.Join(root, ".bmconfig.yaml")
	if _, err := os.Stat(path); err == nil {
		w.Warningf("%s already exists, leaving it untouched", path)
		return nil
	}

	cfg := config.NewConfig()
	if err := cfg.WriteYAML(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	dataDir := filepath.Join(root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dataDirName, err)
	}

	w.Successf("wrote %s", path)
	w.Statusf("", "run 'bmsync sync' to build the knowledge graph")
	return nil
}
