// Package watcher drives bmsync's `watch` command: it watches a project
// directory for markdown changes and feeds debounced batches to the sync
// engine instead of resyncing on every single write.
//
// Two watching strategies back it:
//   - HybridWatcher, using fsnotify for event-based watching
//   - PollingWatcher, a walk-and-diff fallback for filesystems fsnotify
//     doesn't support (network mounts, some Docker volume drivers)
//
// Events pass through a Debouncer so a burst of saves from an editor or a
// git checkout reaches the sync engine as one batch, and are filtered
// against the project's .gitignore files and Options.IgnorePatterns before
// that. The watcher does not read .bmignore files.
//
// Usage:
//
//	opts := watcher.DefaultOptions()
//	w, err := watcher.NewHybridWatcher(opts)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	if err := w.Start(ctx, projectRoot); err != nil {
//	    return err
//	}
//
//	for batch := range w.Events() {
//	    // batch is a coalesced []FileEvent ready to hand to sync.Service.Sync
//	}
package watcher
