package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects file changes by re-walking the project directory
// on a timer and diffing against the previous walk's snapshot. It's the
// fallback engine HybridWatcher uses when an fsnotify watcher can't be
// created on the platform.
type PollingWatcher struct {
	mu       sync.RWMutex
	interval time.Duration
	rootPath string
	state    map[string]snapshot
	events   chan FileEvent
	errs     chan error
	stopCh   chan struct{}
	stopped  bool
}

// snapshot is the subset of file metadata cheap enough to compare on every
// poll tick without reading file contents.
type snapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher returns a watcher that re-walks its root every interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		state:    make(map[string]snapshot),
		events:   make(chan FileEvent, 100),
		errs:     make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start walks path once to establish a baseline, then polls every interval
// until ctx is cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.rootPath = absPath

	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}

	if err := p.establishBaseline(); err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.pollOnce(); err != nil {
				select {
				case p.errs <- err:
				default:
				}
			}
		}
	}
}

// Stop halts polling and closes the event/error channels. Safe to call
// more than once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errs)
	return nil
}

// Events returns the channel of detected file changes.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of non-fatal walk errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errs
}

// walkSnapshot walks rootPath and returns a snapshot per relative path,
// silently skipping entries that can't be statted (permission races,
// removed-mid-walk).
func walkSnapshot(rootPath string) (map[string]snapshot, error) {
	out := make(map[string]snapshot)
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(rootPath, path)
		if err != nil || relPath == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[relPath] = snapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return out, err
}

func (p *PollingWatcher) establishBaseline() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := walkSnapshot(p.rootPath)
	if err != nil {
		return err
	}
	p.state = state
	return nil
}

// pollOnce re-walks the root, emits one event per created/modified/deleted
// path found by diffing against the previous poll, and adopts the new
// snapshot as the baseline for the next tick.
func (p *PollingWatcher) pollOnce() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := walkSnapshot(p.rootPath)
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	for relPath, snap := range current {
		prev, existed := p.state[relPath]
		switch {
		case !existed:
			p.emitLocked(FileEvent{Path: relPath, Operation: OpCreate, IsDir: snap.isDir, Timestamp: time.Now()})
		case prev.modTime != snap.modTime || prev.size != snap.size:
			p.emitLocked(FileEvent{Path: relPath, Operation: OpModify, IsDir: snap.isDir, Timestamp: time.Now()})
		}
	}

	for relPath, snap := range p.state {
		if _, stillThere := current[relPath]; !stillThere {
			p.emitLocked(FileEvent{Path: relPath, Operation: OpDelete, IsDir: snap.isDir, Timestamp: time.Now()})
		}
	}

	p.state = current
	return nil
}

// emitLocked sends event to the events channel. Caller must hold p.mu.
func (p *PollingWatcher) emitLocked(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()),
		)
	}
}
