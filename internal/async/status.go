// Package async provides background processing infrastructure for bmsync.
package async

import (
	"sync"
	"time"
)

// SyncStatus represents the overall sync-pass state.
type SyncStatus string

const (
	// StatusSyncing indicates a sync pass is in progress.
	StatusSyncing SyncStatus = "syncing"
	// StatusReady indicates the last sync pass completed and the index is current.
	StatusReady SyncStatus = "ready"
	// StatusError indicates the sync pass failed with a fatal error.
	StatusError SyncStatus = "error"
)

// SyncStage represents the current stage of one sync pass.
type SyncStage string

const (
	// StageScanning is the file-discovery phase (C7).
	StageScanning SyncStage = "scanning"
	// StageParsing is the frontmatter/observation/relation parse phase (C3).
	StageParsing SyncStage = "parsing"
	// StageApplying is the phase applying the change set to the graph (C4).
	StageApplying SyncStage = "applying"
	// StageResolving is the forward-reference resolution sweep (C6).
	StageResolving SyncStage = "resolving"
)

// SyncProgressSnapshot is an immutable snapshot of sync progress.
type SyncProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	EntitiesTotal  int     `json:"entities_total"`
	EntitiesSynced int     `json:"entities_synced"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// SyncProgress provides thread-safe tracking of sync-pass progress.
type SyncProgress struct {
	mu sync.RWMutex

	status         SyncStatus
	stage          SyncStage
	filesTotal     int
	filesProcessed int
	entitiesTotal  int
	entitiesSynced int
	startTime      time.Time
	errorMessage   string
}

// NewSyncProgress creates a new progress tracker initialized for scanning.
func NewSyncProgress() *SyncProgress {
	return &SyncProgress{
		status:    StatusSyncing,
		stage:     StageScanning,
		startTime: time.Now(),
	}
}

// SetStage updates the current sync stage and resets the file total count.
func (p *SyncProgress) SetStage(stage SyncStage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.filesTotal = total
}

// UpdateFiles updates the number of processed files.
func (p *SyncProgress) UpdateFiles(processed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesProcessed = processed
}

// SetEntitiesTotal sets the total number of entities to sync.
func (p *SyncProgress) SetEntitiesTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entitiesTotal = total
}

// UpdateEntities updates the number of synced entities.
func (p *SyncProgress) UpdateEntities(synced int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entitiesSynced = synced
}

// SetError marks the sync pass as failed with an error message.
func (p *SyncProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the sync pass as complete.
func (p *SyncProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsSyncing returns true if a sync pass is still in progress.
func (p *SyncProgress) IsSyncing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusSyncing
}

// Snapshot returns an immutable copy of the current progress state.
func (p *SyncProgress) Snapshot() SyncProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.filesTotal > 0 {
		progressPct = float64(p.filesProcessed) / float64(p.filesTotal) * 100.0
	}

	return SyncProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		EntitiesTotal:  p.entitiesTotal,
		EntitiesSynced: p.entitiesSynced,
		ProgressPct:    progressPct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
