package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/basic-memory/bmsync/internal/config"
	"github.com/basic-memory/bmsync/internal/output"
)

// newConfigCmd groups subcommands for the user-level (not per-project)
// configuration file at config.GetUserConfigPath().
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the user-level bmsync configuration",
	}
	cmd.AddCommand(newConfigBackupCmd())
	cmd.AddCommand(newConfigListBackupsCmd())
	cmd.AddCommand(newConfigRestoreCmd())
	return cmd
}

func newConfigBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the current user config before editing it by hand",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := output.New(cmd.OutOrStdout())
			path, err := config.BackupUserConfig()
			if err != nil {
				return fmt.Errorf("failed to back up user config: %w", err)
			}
			if path == "" {
				w.Statusf("", "no user config exists yet, nothing to back up")
				return nil
			}
			w.Successf("backed up user config to %s", path)
			return nil
		},
	}
}

func newConfigListBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-backups",
		Short: "List user config backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := output.New(cmd.OutOrStdout())
			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return fmt.Errorf("failed to list user config backups: %w", err)
			}
			if len(backups) == 0 {
				w.Statusf("", "no backups found")
				return nil
			}
			for _, b := range backups {
				w.Statusf("", "%s", b)
			}
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-path>",
		Short: "Restore the user config from a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := output.New(cmd.OutOrStdout())
			if err := config.RestoreUserConfig(args[0]); err != nil {
				return fmt.Errorf("failed to restore user config: %w", err)
			}
			w.Successf("restored user config from %s", args[0])
			return nil
		},
	}
}
