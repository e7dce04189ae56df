package async

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSyncProgress(t *testing.T) {
	p := NewSyncProgress()

	require.NotNil(t, p)
	snap := p.Snapshot()
	assert.Equal(t, string(StatusSyncing), snap.Status)
	assert.Equal(t, string(StageScanning), snap.Stage)
	assert.Equal(t, 0, snap.FilesTotal)
	assert.Equal(t, 0, snap.FilesProcessed)
	assert.True(t, p.IsSyncing())
}

func TestSyncProgress_SetStage(t *testing.T) {
	tests := []struct {
		name      string
		stage     SyncStage
		total     int
		wantStage string
		wantTotal int
	}{
		{name: "scanning stage", stage: StageScanning, total: 100, wantStage: "scanning", wantTotal: 100},
		{name: "parsing stage", stage: StageParsing, total: 500, wantStage: "parsing", wantTotal: 500},
		{name: "applying stage", stage: StageApplying, total: 1000, wantStage: "applying", wantTotal: 1000},
		{name: "resolving stage", stage: StageResolving, total: 1000, wantStage: "resolving", wantTotal: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSyncProgress()

			p.SetStage(tt.stage, tt.total)

			snap := p.Snapshot()
			assert.Equal(t, tt.wantStage, snap.Stage)
			assert.Equal(t, tt.wantTotal, snap.FilesTotal)
		})
	}
}

func TestSyncProgress_UpdateFiles(t *testing.T) {
	p := NewSyncProgress()
	p.SetStage(StageParsing, 100)

	p.UpdateFiles(50)

	snap := p.Snapshot()
	assert.Equal(t, 50, snap.FilesProcessed)
	assert.Equal(t, 100, snap.FilesTotal)
}

func TestSyncProgress_UpdateEntities(t *testing.T) {
	p := NewSyncProgress()
	p.SetStage(StageApplying, 100)
	p.SetEntitiesTotal(500)

	p.UpdateEntities(250)

	snap := p.Snapshot()
	assert.Equal(t, 250, snap.EntitiesSynced)
	assert.Equal(t, 500, snap.EntitiesTotal)
}

func TestSyncProgress_SetError(t *testing.T) {
	p := NewSyncProgress()

	p.SetError("parsing failed: invalid frontmatter")

	snap := p.Snapshot()
	assert.Equal(t, string(StatusError), snap.Status)
	assert.Equal(t, "parsing failed: invalid frontmatter", snap.ErrorMessage)
	assert.False(t, p.IsSyncing())
}

func TestSyncProgress_SetReady(t *testing.T) {
	p := NewSyncProgress()
	p.SetStage(StageResolving, 100)
	p.UpdateFiles(100)

	p.SetReady()

	snap := p.Snapshot()
	assert.Equal(t, string(StatusReady), snap.Status)
	assert.False(t, p.IsSyncing())
}

func TestSyncProgress_ProgressPct(t *testing.T) {
	tests := []struct {
		name           string
		total          int
		processed      int
		wantProgressPc float64
	}{
		{name: "zero total returns zero", total: 0, processed: 0, wantProgressPc: 0.0},
		{name: "half complete", total: 100, processed: 50, wantProgressPc: 50.0},
		{name: "fully complete", total: 100, processed: 100, wantProgressPc: 100.0},
		{name: "partial progress", total: 1000, processed: 333, wantProgressPc: 33.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSyncProgress()
			p.SetStage(StageParsing, tt.total)
			p.UpdateFiles(tt.processed)

			snap := p.Snapshot()
			assert.InDelta(t, tt.wantProgressPc, snap.ProgressPct, 0.1)
		})
	}
}

func TestSyncProgress_ElapsedSeconds(t *testing.T) {
	p := NewSyncProgress()

	time.Sleep(100 * time.Millisecond)

	snap := p.Snapshot()
	assert.GreaterOrEqual(t, snap.ElapsedSeconds, 0)
}

func TestSyncProgress_Snapshot_Immutable(t *testing.T) {
	p := NewSyncProgress()
	p.SetStage(StageParsing, 100)
	p.UpdateFiles(50)

	snap1 := p.Snapshot()
	p.UpdateFiles(75)
	snap2 := p.Snapshot()

	assert.Equal(t, 50, snap1.FilesProcessed)
	assert.Equal(t, 75, snap2.FilesProcessed)
}

func TestSyncProgress_ThreadSafe(t *testing.T) {
	p := NewSyncProgress()
	p.SetStage(StageApplying, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)

		go func(n int) {
			defer wg.Done()
			p.UpdateFiles(n)
		}(i)

		go func() {
			defer wg.Done()
			_ = p.Snapshot()
			_ = p.IsSyncing()
		}()
	}

	wg.Wait()

	snap := p.Snapshot()
	assert.GreaterOrEqual(t, snap.FilesProcessed, 0)
	assert.LessOrEqual(t, snap.FilesProcessed, 99)
}

func TestSyncProgress_ConcurrentStageTransitions(t *testing.T) {
	p := NewSyncProgress()

	var wg sync.WaitGroup
	stages := []SyncStage{StageScanning, StageParsing, StageApplying, StageResolving}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			stage := stages[n%len(stages)]
			p.SetStage(stage, n*10)
			_ = p.Snapshot()
		}(i)
	}

	wg.Wait()

	snap := p.Snapshot()
	assert.NotEmpty(t, snap.Stage)
}

func TestSyncStatus_Values(t *testing.T) {
	assert.Equal(t, "syncing", string(StatusSyncing))
	assert.Equal(t, "ready", string(StatusReady))
	assert.Equal(t, "error", string(StatusError))
}

func TestSyncStage_Values(t *testing.T) {
	assert.Equal(t, "scanning", string(StageScanning))
	assert.Equal(t, "parsing", string(StageParsing))
	assert.Equal(t, "applying", string(StageApplying))
	assert.Equal(t, "resolving", string(StageResolving))
}
