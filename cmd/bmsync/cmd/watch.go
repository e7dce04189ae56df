package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/basic-memory/bmsync/internal/async"
	"github.com/basic-memory/bmsync/internal/daemon"
	"github.com/basic-memory/bmsync/internal/output"
	bmsync "github.com/basic-memory/bmsync/internal/sync"
	"github.com/basic-memory/bmsync/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync once, then watch the project and resync on every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd)
		},
	}
	return cmd
}

func runWatch(cmd *cobra.Command) error {
	log := newLogger()
	p, err := openProject(log)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	w := output.New(cmd.OutOrStdout())

	pidPath := filepath.Join(p.root, dataDirName, "watch.pid")
	pidFile := daemon.NewPIDFile(pidPath)
	if pidFile.IsRunning() {
		pid, _ := pidFile.Read()
		return fmt.Errorf("a watch process is already running for this project (pid %d)", pid)
	}
	if err := pidFile.Write(); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	defer func() { _ = pidFile.Remove() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	progress := async.NewSyncProgress()
	progress.SetStage(async.StageScanning, 0)
	if _, err := p.svc.Sync(ctx, bmsync.Options{ForceFull: true}); err != nil {
		progress.SetError(err.Error())
		return fmt.Errorf("initial sync failed: %w", err)
	}
	progress.SetReady()
	w.Success("initial sync complete, watching for changes")

	hw, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	if err := hw.Start(ctx, p.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", p.root, err)
	}
	defer func() { _ = hw.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-hw.Events():
			if !ok {
				return nil
			}
			w.Statusf("", "detected %d change(s), resyncing", len(batch))
			report, err := p.svc.Sync(ctx, bmsync.Options{})
			if err != nil {
				w.Errorf("resync failed: %v", err)
				continue
			}
			w.Successf("resynced: new=%d modified=%d deleted=%d moved=%d",
				len(report.New), len(report.Modified), len(report.Deleted), len(report.Moves))
		case err, ok := <-hw.Errors():
			if !ok {
				continue
			}
			w.Warningf("watcher error: %v", err)
		}
	}
}
