package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/basic-memory/bmsync/internal/errors"
	"github.com/basic-memory/bmsync/internal/output"
	bmsync "github.com/basic-memory/bmsync/internal/sync"
)

// syncRetryConfig governs retrying a sync that lost the project lock race
// against a concurrently running `watch` on the same project; the lock is
// typically held for well under a second, so a handful of short retries
// usually succeeds without the caller noticing.
var syncRetryConfig = errors.RetryConfig{
	MaxRetries:   3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	Jitter:       true,
}

func newSyncCmd() *cobra.Command {
	var forceFull bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the project's files with the knowledge graph and search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, forceFull, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&forceFull, "full", false, "force a full rescan, ignoring the watermark")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the sync report as JSON")

	return cmd
}

func runSync(cmd *cobra.Command, forceFull, jsonOutput bool) error {
	log := newLogger()
	p, err := openProject(log)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	retryCtx, stopRetrying := context.WithCancel(cmd.Context())
	defer stopRetrying()

	var lastErr error
	report, err := errors.RetryWithResult(retryCtx, syncRetryConfig, func() (*bmsync.Report, error) {
		r, syncErr := p.svc.Sync(cmd.Context(), bmsync.Options{ForceFull: forceFull})
		lastErr = syncErr
		if syncErr != nil && !errors.IsRetryable(syncErr) {
			// Not worth retrying (a parse failure, a full disk, ...);
			// cancel so RetryWithResult stops instead of burning its
			// remaining attempts on a backoff that won't help.
			stopRetrying()
		}
		return r, syncErr
	})
	if err != nil {
		if lastErr != nil {
			err = lastErr
		}
		return fmt.Errorf("%s", errors.FormatForCLI(err))
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := output.New(cmd.OutOrStdout())
	w.Successf("synced %s in %dms", p.root, report.DurationMS)
	w.Statusf("", "new: %d  modified: %d  deleted: %d  moved: %d", len(report.New), len(report.Modified), len(report.Deleted), len(report.Moves))
	for _, skipped := range report.SkippedFiles {
		w.Warningf("quarantined %s after %d failures: %s", skipped.Path, skipped.FailureCount, skipped.Reason)
	}
	return nil
}
