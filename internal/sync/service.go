package sync

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	coreerrors "github.com/basic-memory/bmsync/internal/errors"
	"github.com/basic-memory/bmsync/internal/filestore"
	"github.com/basic-memory/bmsync/internal/graph"
	"github.com/basic-memory/bmsync/internal/markdown"
	"github.com/basic-memory/bmsync/internal/projectscan"
	"github.com/basic-memory/bmsync/internal/resolver"
	"github.com/basic-memory/bmsync/internal/searchindex"
)

// markdownExtensions are the file extensions parsed as notes; everything
// else is indexed as a plain attachment with metadata only.
var markdownExtensions = map[string]bool{".md": true, ".mdx": true}

// Config is the subset of sync-configuration options the service reads.
type Config struct {
	UpdatePermalinksOnMove  bool
	WatermarkEpsilonMS      int
	CircuitBreakerThreshold int
	MaxConcurrentFiles      int
}

// Service is the C8 orchestrator: it owns the per-project circuit breaker
// and the exclusive lock guaranteeing at most one sync in flight.
type Service struct {
	projectRoot string

	store    *graph.Store
	files    *filestore.Store
	index    *searchindex.Index
	resolver *resolver.Resolver
	scanner  *projectscan.Scanner
	breaker  *coreerrors.FileCircuitBreaker

	cfg    Config
	log    *slog.Logger
	lock   *flock.Flock
	mu     sync.Mutex
	inFlight bool
}

// New wires a Service for one project root. lockPath is the sidecar lock
// file path (typically alongside the project's database file).
func New(projectRoot, lockPath string, store *graph.Store, files *filestore.Store,
	index *searchindex.Index, res *resolver.Resolver, scanner *projectscan.Scanner,
	cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		projectRoot: projectRoot,
		store:       store,
		files:       files,
		index:       index,
		resolver:    res,
		scanner:     scanner,
		breaker:     coreerrors.NewFileCircuitBreaker(cfg.CircuitBreakerThreshold),
		cfg:         cfg,
		log:         log,
		lock:        flock.New(lockPath),
	}
}

// Sync reconciles the project against the filesystem. At most one call may
// be in flight at a time; concurrent callers are rejected rather than
// queued, per the single-writer-per-project contract.
func (s *Service) Sync(ctx context.Context, opts Options) (*Report, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, coreerrors.New(coreerrors.ErrCodeLockHeld, "a sync is already in flight for this project", nil)
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, coreerrors.SyncFatalError("failed to acquire project lock", err)
	}
	if !locked {
		return nil, coreerrors.New(coreerrors.ErrCodeLockHeld, "project is locked by another process", nil)
	}
	defer func() { _ = s.lock.Unlock() }()

	start := time.Now()
	report := newReport()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, coreerrors.SyncFatalError("failed to begin sync transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	project, err := tx.EnsureProject(ctx, s.projectRoot)
	if err != nil {
		return nil, coreerrors.SyncFatalError("failed to load project row", err)
	}

	fullScan := opts.ForceFull || project.LastScanTimestamp == nil
	var watermark time.Time
	if !fullScan {
		watermark = *project.LastScanTimestamp
	}

	existing, err := s.loadExisting(ctx, tx, project.ID)
	if err != nil {
		return nil, coreerrors.SyncFatalError("failed to load existing entity state", err)
	}

	scannedFiles, observed, err := s.scanAndChecksum(ctx, watermark)
	if err != nil {
		return nil, coreerrors.SyncFatalError("failed to enumerate project files", err)
	}

	cs := buildChangeSet(existing, scannedFiles, fullScan)

	for _, m := range cs.Moves {
		if err := s.applyMove(ctx, tx, project.ID, m); err != nil {
			if coreerrors.IsFatal(err) {
				return nil, err
			}
			s.log.Warn("move failed, leaving as delete+new", "old_path", m.OldPath, "new_path", m.NewPath, "error", err)
			cs.Deleted = append(cs.Deleted, m.OldPath)
			cs.New = append(cs.New, scanned{path: m.NewPath, checksum: m.Checksum})
			continue
		}
		report.Moves[m.OldPath] = m.NewPath
	}

	for _, p := range cs.Deleted {
		if err := s.applyDelete(ctx, tx, project.ID, p); err != nil {
			if coreerrors.IsFatal(err) {
				return nil, err
			}
			s.log.Warn("delete failed", "path", p, "error", err)
			continue
		}
		report.Deleted = append(report.Deleted, p)
	}

	if err := s.applyFiles(ctx, tx, project, cs, report); err != nil {
		return nil, err
	}

	if err := s.resolutionSweep(ctx, tx, project.ID, report); err != nil {
		return nil, err
	}

	if err := tx.SetWatermark(ctx, project.ID, time.Now().UTC(), observed); err != nil {
		return nil, coreerrors.SyncFatalError("failed to persist watermark", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, coreerrors.SyncFatalError("failed to commit sync transaction", err)
	}
	committed = true

	report.Total = len(report.New) + len(report.Modified) + len(report.Deleted) + len(report.Moves)
	report.DurationMS = time.Since(start).Milliseconds()
	return report, nil
}

func (s *Service) loadExisting(ctx context.Context, tx *graph.Tx, projectID int64) (map[string]fileRecord, error) {
	entities, err := tx.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]fileRecord, len(entities))
	for _, e := range entities {
		out[e.FilePath] = fileRecord{entityID: e.ID, permalink: e.Permalink, checksum: e.Checksum}
	}
	return out, nil
}

func (s *Service) scanAndChecksum(ctx context.Context, watermark time.Time) ([]scanned, int, error) {
	epsilon := time.Duration(s.cfg.WatermarkEpsilonMS) * time.Millisecond
	results, err := s.scanner.Scan(ctx, &projectscan.ScanOptions{
		RootDir:          s.projectRoot,
		RespectGitignore: true,
		Watermark:        watermark,
		WatermarkEpsilon: epsilon,
	})
	if err != nil {
		return nil, 0, err
	}

	var out []scanned
	count := 0
	for res := range results {
		if res.Error != nil {
			s.log.Warn("scan entry failed", "error", res.Error)
			continue
		}
		count++
		checksum, err := s.files.ComputeChecksum(res.File.Path)
		if err != nil {
			s.log.Warn("checksum failed, skipping file this pass", "path", res.File.Path, "error", err)
			continue
		}
		out = append(out, scanned{
			path:     res.File.Path,
			absPath:  res.File.AbsPath,
			modTime:  res.File.ModTime,
			checksum: checksum,
		})
	}
	return out, count, nil
}

func (s *Service) applyMove(ctx context.Context, tx *graph.Tx, projectID int64, m MovePair) error {
	if err := tx.UpdateFilePath(ctx, m.EntityID, m.NewPath); err != nil {
		return err
	}
	if !s.cfg.UpdatePermalinksOnMove {
		return nil
	}

	entity, err := tx.GetByID(ctx, projectID, m.EntityID)
	if err != nil {
		return err
	}
	candidate := graph.DerivePermalink(m.NewPath)
	final := graph.NextCollisionSuffix(candidate, func(c string) bool {
		return s.permalinkTakenByOther(ctx, tx, projectID, c, entity.ID)
	})
	if entity.Permalink != nil && *entity.Permalink == final {
		return nil
	}
	if err := tx.UpdatePermalink(ctx, m.EntityID, &final); err != nil {
		return err
	}
	s.resolver.Invalidate(projectID, final)
	if entity.Permalink != nil {
		s.resolver.Invalidate(projectID, *entity.Permalink)
	}
	return nil
}

func (s *Service) applyDelete(ctx context.Context, tx *graph.Tx, projectID int64, p string) error {
	entity, err := tx.GetByFilePath(ctx, projectID, p)
	if err == nil && entity.Permalink != nil {
		s.resolver.Invalidate(projectID, *entity.Permalink)
		if err := s.index.DeleteByEntityID(ctx, tx.SQLTx(), entity.ID); err != nil {
			return err
		}
	}
	return tx.DeleteByFilePath(ctx, projectID, p)
}

// preparedFile holds the result of reading, checksumming, and parsing one
// file — everything syncFile needs that doesn't touch the graph.
type preparedFile struct {
	checksum    string
	isMD        bool
	parsed      *markdown.EntityMarkdown
	title       string
	entityType  string
	contentType string
}

// prepareFile does the CPU/IO-bound half of sync_file (§4.8.3): read,
// checksum, and parse. It never touches the graph transaction, so it is
// safe to run concurrently across files.
func (s *Service) prepareFile(f scanned) (*preparedFile, error) {
	data, checksum, err := s.files.Read(f.path)
	if err != nil {
		return nil, err
	}

	p := &preparedFile{
		checksum:    checksum,
		isMD:        isMarkdownPath(f.path),
		title:       filenameStem(f.path),
		entityType:  "file",
		contentType: guessContentType(f.path),
	}

	if p.isMD {
		parsed, err := markdown.Parse(data)
		if err != nil {
			return nil, err
		}
		p.parsed = parsed
		if t := parsed.FrontmatterString("title"); t != "" {
			p.title = t
		}
		p.entityType = "note"
		if t := parsed.FrontmatterString("type"); t != "" {
			p.entityType = t
		}
		p.contentType = "text/markdown"
	}

	return p, nil
}

// applyFiles applies every new/modified file in cs to the graph. File
// reading/checksumming/parsing is fanned out across up to
// MaxConcurrentFiles goroutines (none of them touch tx); applying the
// parsed result to the graph then runs sequentially in the calling
// goroutine, since graph.Store holds a single SQLite connection and tx
// wraps the one *sql.Tx on it — sharing that *sql.Tx across goroutines
// would only serialize them anyway, and doing so from multiple goroutines
// at once is not a pattern any part of this codebase uses elsewhere.
func (s *Service) applyFiles(ctx context.Context, tx *graph.Tx, project *graph.Project, cs *ChangeSet, report *Report) error {
	type job struct {
		file  scanned
		isNew bool
	}
	jobs := make([]job, 0, len(cs.New)+len(cs.Modified))
	for _, f := range cs.New {
		jobs = append(jobs, job{f, true})
	}
	for _, f := range cs.Modified {
		jobs = append(jobs, job{f, false})
	}

	prepared := make([]*preparedFile, len(jobs))
	prepErrs := make([]error, len(jobs))
	quarantined := make([]bool, len(jobs))

	group, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.MaxConcurrentFiles
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	for i, j := range jobs {
		i, j := i, j
		group.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			if !s.breaker.Allow(j.file.path, j.file.checksum) {
				quarantined[i] = true
				return nil
			}

			p, err := s.prepareFile(j.file)
			if err != nil {
				prepErrs[i] = err
				return nil
			}
			prepared[i] = p
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, j := range jobs {
		if quarantined[i] {
			report.SkippedFiles = append(report.SkippedFiles, SkippedFile{
				Path: j.file.path, FailureCount: s.breaker.FailureCount(j.file.path), Reason: "circuit breaker quarantine",
			})
			continue
		}
		if prepErrs[i] != nil {
			count := s.breaker.RecordFailure(j.file.path, j.file.checksum)
			s.log.Warn("sync_file failed", "path", j.file.path, "error", prepErrs[i], "failure_count", count)
			if count >= s.cfg.CircuitBreakerThreshold {
				report.SkippedFiles = append(report.SkippedFiles, SkippedFile{
					Path: j.file.path, FailureCount: count, Reason: prepErrs[i].Error(),
				})
			}
			continue
		}

		_, checksum, err := s.syncFile(ctx, tx, project, j.file, prepared[i])
		if err != nil {
			if coreerrors.IsFatal(err) {
				return err
			}
			count := s.breaker.RecordFailure(j.file.path, j.file.checksum)
			s.log.Warn("sync_file failed", "path", j.file.path, "error", err, "failure_count", count)
			if count >= s.cfg.CircuitBreakerThreshold {
				report.SkippedFiles = append(report.SkippedFiles, SkippedFile{
					Path: j.file.path, FailureCount: count, Reason: err.Error(),
				})
			}
			continue
		}
		s.breaker.RecordSuccess(j.file.path)

		if j.isNew {
			report.New = append(report.New, j.file.path)
		} else {
			report.Modified = append(report.Modified, j.file.path)
		}
		report.Checksums[j.file.path] = checksum
	}

	return nil
}

// syncFile implements the graph-writing half of sync_file (§4.8.3):
// resolve permalink, upsert with a null checksum, replace
// observations/relations, then stamp the post-write checksum and reindex.
// p is the already-parsed result of prepareFile for the same file.
func (s *Service) syncFile(ctx context.Context, tx *graph.Tx, project *graph.Project, f scanned, p *preparedFile) (*graph.Entity, string, error) {
	checksum := p.checksum

	permalink, rewritten, err := s.resolvePermalink(ctx, tx, project.ID, f.path, p.parsed)
	if err != nil {
		return nil, "", err
	}
	if rewritten {
		newChecksum, err := s.files.WriteFrontmatter(f.path, map[string]any{"permalink": permalink})
		if err != nil {
			return nil, "", err
		}
		checksum = newChecksum
	}

	entity, err := tx.UpsertEntity(ctx, &graph.Entity{
		ProjectID:   project.ID,
		FilePath:    f.path,
		Permalink:   &permalink,
		Title:       p.title,
		EntityType:  p.entityType,
		ContentType: p.contentType,
		Checksum:    nil,
	})
	if err != nil {
		return nil, "", err
	}

	var obs []graph.Observation
	var rels []graph.Relation
	if p.isMD {
		obs = convertObservations(p.parsed.Observations)
		rels = s.resolveRelations(ctx, tx, project.ID, entity.ID, p.parsed.Relations)
	}
	if err := tx.ReplaceObservations(ctx, entity.ID, obs); err != nil {
		return nil, "", err
	}
	if err := tx.ReplaceOutgoingRelations(ctx, entity.ID, rels); err != nil {
		return nil, "", err
	}

	entity.Checksum = &checksum
	entity, err = tx.UpsertEntity(ctx, entity)
	if err != nil {
		return nil, "", err
	}

	var body string
	if p.isMD && p.parsed != nil {
		body = p.parsed.Body
	}
	if err := s.reindex(ctx, tx, entity, body); err != nil {
		return nil, "", err
	}

	return entity, checksum, nil
}

// resolvePermalink implements the permalink-resolution rule from §4.8.3
// step 2: an explicit, unique frontmatter permalink is accepted as-is.
// Otherwise the base is the colliding frontmatter permalink, or the one
// derived from the file path when there is none or UpdatePermalinksOnMove
// is set, and that base is suffixed until unique.
func (s *Service) resolvePermalink(ctx context.Context, tx *graph.Tx, projectID int64, filePath string, parsed *markdown.EntityMarkdown) (string, bool, error) {
	existing, err := tx.GetByFilePath(ctx, projectID, filePath)
	var selfID int64
	if err == nil {
		selfID = existing.ID
	}

	var fmPermalink string
	if parsed != nil {
		fmPermalink = parsed.FrontmatterString("permalink")
	}

	if fmPermalink != "" && !s.permalinkTakenByOther(ctx, tx, projectID, fmPermalink, selfID) {
		return fmPermalink, false, nil
	}

	candidate := graph.DerivePermalink(filePath)
	if fmPermalink != "" && !s.cfg.UpdatePermalinksOnMove {
		candidate = fmPermalink
	}
	final := graph.NextCollisionSuffix(candidate, func(c string) bool {
		return s.permalinkTakenByOther(ctx, tx, projectID, c, selfID)
	})
	rewritten := parsed != nil && fmPermalink != "" && fmPermalink != final
	return final, rewritten, nil
}

func (s *Service) permalinkTakenByOther(ctx context.Context, tx *graph.Tx, projectID int64, candidate string, selfID int64) bool {
	e, err := tx.GetByPermalink(ctx, projectID, candidate)
	if err != nil || e == nil {
		return false
	}
	return e.ID != selfID
}

func (s *Service) resolveRelations(ctx context.Context, tx *graph.Tx, projectID, fromID int64, rels []markdown.Relation) []graph.Relation {
	out := make([]graph.Relation, 0, len(rels))
	for _, r := range rels {
		rel := graph.Relation{FromID: fromID, ToName: r.Target, RelationType: r.RelationType}
		if r.Context != "" {
			ctx2 := r.Context
			rel.Context = &ctx2
		}
		if target, ok := s.resolver.Resolve(ctx, tx, projectID, r.Target); ok {
			rel.ToID = &target.ID
		}
		out = append(out, rel)
	}
	return out
}

// reindex rebuilds the search-index document for e. Observations and
// outgoing relations are loaded from the graph through tx rather than
// from a freshly parsed file, so a reindex triggered without a fresh parse
// (the resolution sweep) still carries the entity's full observation and
// relation set instead of wiping them down to empty. body is the
// caller's responsibility to supply, since it lives only in the file, not
// in any graph row.
func (s *Service) reindex(ctx context.Context, tx *graph.Tx, e *graph.Entity, body string) error {
	doc := &searchindex.Document{
		EntityID:   e.ID,
		FilePath:   e.FilePath,
		Title:      e.Title,
		EntityType: e.EntityType,
		Content:    body,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
	if e.Permalink != nil {
		doc.Permalink = *e.Permalink
	}

	obs, err := tx.ListObservations(ctx, e.ID)
	if err != nil {
		return err
	}
	for _, o := range obs {
		var category string
		if o.Category != nil {
			category = *o.Category
		}
		doc.Observations = append(doc.Observations, searchindex.ObservationDoc{Content: o.Content, Category: category})
	}

	rels, err := tx.ListOutgoingRelations(ctx, e.ID)
	if err != nil {
		return err
	}
	for _, r := range rels {
		doc.Relations = append(doc.Relations, searchindex.RelationDoc{
			ToID:         r.ToID,
			RelationType: r.RelationType,
			Content:      fmt.Sprintf("%s [[%s]]", r.RelationType, r.ToName),
		})
	}

	return s.index.IndexEntity(ctx, tx.SQLTx(), doc)
}

// reloadBody re-reads and re-parses entity's file to recover its body text
// where only the graph row, not a freshly parsed file, is at hand (the
// resolution sweep runs well after the original parse and doesn't keep it
// around). Non-markdown files and read/parse failures reindex with an
// empty body rather than aborting the sweep.
func (s *Service) reloadBody(entity *graph.Entity) string {
	if !isMarkdownPath(entity.FilePath) {
		return ""
	}
	data, _, err := s.files.Read(entity.FilePath)
	if err != nil {
		s.log.Warn("failed to re-read file for reindex", "path", entity.FilePath, "error", err)
		return ""
	}
	parsed, err := markdown.Parse(data)
	if err != nil {
		s.log.Warn("failed to re-parse file for reindex", "path", entity.FilePath, "error", err)
		return ""
	}
	return parsed.Body
}

// resolutionSweep re-resolves every forward reference in the project;
// self-referential resolutions are ignored to avoid rewriting an entity
// that already points at itself.
func (s *Service) resolutionSweep(ctx context.Context, tx *graph.Tx, projectID int64, report *Report) error {
	unresolved, err := tx.FindUnresolvedRelations(ctx, projectID)
	if err != nil {
		return coreerrors.SyncFatalError("failed to load unresolved relations", err)
	}

	reindexed := make(map[int64]bool)
	for _, rel := range unresolved {
		target, ok := s.resolver.Resolve(ctx, tx, projectID, rel.ToName)
		if !ok || target.ID == rel.FromID {
			continue
		}
		if err := tx.ResolveRelation(ctx, rel.ID, target.ID); err != nil {
			s.log.Warn("failed to resolve relation", "relation_id", rel.ID, "error", err)
			continue
		}
		reindexed[rel.FromID] = true
	}

	for entityID := range reindexed {
		entity, err := tx.GetByID(ctx, projectID, entityID)
		if err != nil {
			continue
		}
		if err := s.reindex(ctx, tx, entity, s.reloadBody(entity)); err != nil {
			s.log.Warn("failed to reindex after resolution sweep", "entity_id", entityID, "error", err)
		}
	}
	return nil
}

func convertObservations(obs []markdown.Observation) []graph.Observation {
	out := make([]graph.Observation, 0, len(obs))
	for _, o := range obs {
		converted := graph.Observation{Content: o.Content, Tags: o.Tags}
		if o.Category != "" {
			c := o.Category
			converted.Category = &c
		}
		if o.Context != "" {
			c := o.Context
			converted.Context = &c
		}
		out = append(out, converted)
	}
	return out
}

func isMarkdownPath(p string) bool {
	return markdownExtensions[strings.ToLower(path.Ext(filepath.ToSlash(p)))]
}

func filenameStem(p string) string {
	base := path.Base(filepath.ToSlash(p))
	return strings.TrimSuffix(base, path.Ext(base))
}

func guessContentType(p string) string {
	if t := mime.TypeByExtension(path.Ext(filepath.ToSlash(p))); t != "" {
		return t
	}
	return "application/octet-stream"
}
