package sync

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/basic-memory/bmsync/internal/filestore"
	"github.com/basic-memory/bmsync/internal/graph"
	"github.com/basic-memory/bmsync/internal/projectscan"
	"github.com/basic-memory/bmsync/internal/resolver"
	"github.com/basic-memory/bmsync/internal/searchindex"
)

type harness struct {
	svc   *Service
	root  string
	store *graph.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()

	store, err := graph.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	idx, err := searchindex.Open(store.DB())
	require.NoError(t, err)

	res, err := resolver.New()
	require.NoError(t, err)

	scanner, err := projectscan.New()
	require.NoError(t, err)

	files := filestore.New(root)

	svc := New(root, filepath.Join(root, ".bmsync.lock"), store, files, idx, res, scanner, Config{
		WatermarkEpsilonMS:      500,
		CircuitBreakerThreshold: 3,
		MaxConcurrentFiles:      4,
	}, nil)

	return &harness{svc: svc, root: root, store: store}
}

func (h *harness) writeFile(t *testing.T, relPath, content string) {
	t.Helper()
	abs := filepath.Join(h.root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func (h *harness) entity(t *testing.T, relPath string) *graph.Entity {
	t.Helper()
	ctx := context.Background()
	tx, err := h.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	proj, err := tx.EnsureProject(ctx, h.root)
	require.NoError(t, err)
	e, err := tx.GetByFilePath(ctx, proj.ID, relPath)
	require.NoError(t, err)
	return e
}

func (h *harness) searchCount(t *testing.T, text string) int {
	t.Helper()
	var count int
	require.NoError(t, h.store.DB().QueryRow(`SELECT COUNT(*) FROM search_fts WHERE search_fts MATCH ?`, text+"*").Scan(&count))
	return count
}

const sampleNote = `---
title: Hello World
---

# Hello World

Intro paragraph mentioning [[other-note]].

## Observations
- [design] uses SQLite #storage

## Relations
- depends_on [[other-note]]
`

func TestSync_NewMarkdownFile_CreatesEntityObservationsAndRelations(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "note.md", sampleNote)

	report, err := h.svc.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"note.md"}, report.New)
	assert.Equal(t, 1, report.Total)
	assert.Empty(t, report.SkippedFiles)

	e := h.entity(t, "note.md")
	require.NotNil(t, e.Checksum)
	assert.Equal(t, "Hello World", e.Title)
	assert.Equal(t, "text/markdown", e.ContentType)
	require.NotNil(t, e.Permalink)
	assert.Equal(t, "note", *e.Permalink)
}

func TestSync_Idempotent_SecondSyncReportsEmpty(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "note.md", sampleNote)

	_, err := h.svc.Sync(context.Background(), Options{})
	require.NoError(t, err)

	report, err := h.svc.Sync(context.Background(), Options{ForceFull: true})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Empty(t, report.New)
	assert.Empty(t, report.Modified)
	assert.Empty(t, report.Deleted)
}

func TestSync_ModifiedFile_UpdatesChecksum(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "note.md", sampleNote)
	_, err := h.svc.Sync(context.Background(), Options{})
	require.NoError(t, err)

	before := h.entity(t, "note.md")

	h.writeFile(t, "note.md", sampleNote+"\nMore content.\n")
	report, err := h.svc.Sync(context.Background(), Options{ForceFull: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"note.md"}, report.Modified)

	after := h.entity(t, "note.md")
	assert.Equal(t, before.ID, after.ID)
	assert.NotEqual(t, *before.Checksum, *after.Checksum)
}

func TestSync_DeletedFile_Cascades(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "note.md", sampleNote)
	_, err := h.svc.Sync(context.Background(), Options{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(h.root, "note.md")))

	report, err := h.svc.Sync(context.Background(), Options{ForceFull: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"note.md"}, report.Deleted)

	ctx := context.Background()
	tx, err := h.store.Begin(ctx)
	require.NoError(t, err)
	proj, err := tx.EnsureProject(ctx, h.root)
	require.NoError(t, err)
	_, err = tx.GetByFilePath(ctx, proj.ID, "note.md")
	assert.Error(t, err)
	require.NoError(t, tx.Commit())
}

func TestSync_MovedFile_PreservesIDAndPermalinkByDefault(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "note.md", sampleNote)
	_, err := h.svc.Sync(context.Background(), Options{})
	require.NoError(t, err)
	before := h.entity(t, "note.md")

	require.NoError(t, os.Rename(filepath.Join(h.root, "note.md"), filepath.Join(h.root, "moved.md")))

	report, err := h.svc.Sync(context.Background(), Options{ForceFull: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"note.md": "moved.md"}, report.Moves)

	after := h.entity(t, "moved.md")
	assert.Equal(t, before.ID, after.ID)
	require.NotNil(t, after.Permalink)
	assert.Equal(t, *before.Permalink, *after.Permalink)
}

func TestSync_ForwardReference_ResolvesOnLaterSync(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "a.md", "---\ntitle: A\n---\n\n## Relations\n- depends_on [[b]]\n")

	_, err := h.svc.Sync(context.Background(), Options{})
	require.NoError(t, err)

	ctx := context.Background()
	tx, err := h.store.Begin(ctx)
	require.NoError(t, err)
	proj, err := tx.EnsureProject(ctx, h.root)
	require.NoError(t, err)
	unresolved, err := tx.FindUnresolvedRelations(ctx, proj.ID)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	require.NoError(t, tx.Commit())

	h.writeFile(t, "b.md", "---\ntitle: B\n---\n\nbody\n")
	_, err = h.svc.Sync(context.Background(), Options{ForceFull: true})
	require.NoError(t, err)

	tx2, err := h.store.Begin(ctx)
	require.NoError(t, err)
	unresolved2, err := tx2.FindUnresolvedRelations(ctx, proj.ID)
	require.NoError(t, err)
	assert.Empty(t, unresolved2)
	require.NoError(t, tx2.Commit())
}

func TestSync_NonMarkdownAttachment_IndexedWithoutBody(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "attachment.pdf", "%PDF-1.4 fake content")

	report, err := h.svc.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"attachment.pdf"}, report.New)

	e := h.entity(t, "attachment.pdf")
	assert.Equal(t, "file", e.EntityType)
	require.NotNil(t, e.Permalink)
	assert.Equal(t, "attachment", *e.Permalink)
}

func TestSync_PermalinkCollision_AppendsSuffix(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "a/note.md", "---\ntitle: A\npermalink: shared\n---\nbody a\n")
	h.writeFile(t, "b/note.md", "---\ntitle: B\npermalink: shared\n---\nbody b\n")

	_, err := h.svc.Sync(context.Background(), Options{})
	require.NoError(t, err)

	ea := h.entity(t, "a/note.md")
	eb := h.entity(t, "b/note.md")
	require.NotNil(t, ea.Permalink)
	require.NotNil(t, eb.Permalink)
	assert.NotEqual(t, *ea.Permalink, *eb.Permalink)
	permalinks := map[string]bool{*ea.Permalink: true, *eb.Permalink: true}
	assert.True(t, permalinks["shared"])
	assert.True(t, permalinks["shared-1"])
}

func TestSync_ConcurrentSyncCalls_SecondRejected(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "note.md", sampleNote)

	h.svc.mu.Lock()
	h.svc.inFlight = true
	h.svc.mu.Unlock()

	_, err := h.svc.Sync(context.Background(), Options{})
	require.Error(t, err)

	h.svc.mu.Lock()
	h.svc.inFlight = false
	h.svc.mu.Unlock()
}

var _ = sql.ErrNoRows
