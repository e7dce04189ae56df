package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid-fire filesystem events per path so a quick
// save-then-save-again in an editor reaches the sync engine as one event
// instead of triggering a reindex per write. Coalescing rules, by the
// first and the newest operation seen for a path within the window:
//
//	create  + modify -> create  (still a brand new file)
//	create  + delete -> dropped (never existed as far as the graph cares)
//	modify  + delete -> delete
//	delete  + create -> modify  (same path, replaced content)
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*pendingEvent
	timer   *time.Timer
	out     chan []FileEvent
	closed  bool
}

type pendingEvent struct {
	event     FileEvent
	firstOp   Operation
	touchedAt time.Time
}

// NewDebouncer returns a Debouncer that batches events seen within window
// of each other.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		out:     make(chan []FileEvent, 10),
	}
}

// Add records event, coalescing it with any pending event for the same
// path and (re)starting the flush timer.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged := coalesce(existing.firstOp, existing.event, event)
		if merged == nil {
			delete(d.pending, event.Path)
		} else {
			existing.event = *merged
			existing.touchedAt = time.Now()
		}
	} else {
		d.pending[event.Path] = &pendingEvent{
			event:     event,
			firstOp:   event.Operation,
			touchedAt: time.Now(),
		}
	}

	d.rearm()
}

// coalesce merges prev (whose first-seen operation was firstOp) with next,
// returning nil when the pair cancels out entirely.
func coalesce(firstOp Operation, prev, next FileEvent) *FileEvent {
	switch firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return &prev
		case OpDelete:
			return nil
		default:
			return &next
		}

	case OpDelete:
		if next.Operation == OpCreate {
			replaced := next
			replaced.Operation = OpModify
			return &replaced
		}
		return &next

	default: // OpModify, or an operation this debouncer doesn't special-case
		return &next
	}
}

// rearm resets the flush timer so the batch emits window after the most
// recent event, not window after the first one.
func (d *Debouncer) rearm() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits every pending event as one batch and clears the pending set.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		batch = append(batch, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.out <- batch:
	default:
		slog.Warn("debouncer output full, dropping batch", slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel debounced batches are emitted on.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.out
}

// Stop disarms the timer and closes the output channel. Safe to call more
// than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
