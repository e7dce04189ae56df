package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	coreerrors "github.com/basic-memory/bmsync/internal/errors"
)

// Tx scopes every entity/observation/relation mutation needed by one
// sync_file call to a single SQLite transaction, so readers never observe
// a half-updated entity.
type Tx struct {
	tx *sql.Tx
}

// SQLTx exposes the underlying *sql.Tx so a caller sharing this same
// transaction's connection (the search index's write-through reindex) can
// ride on it rather than opening a second transaction against a pool that
// holds only one connection.
func (t *Tx) SQLTx() *sql.Tx {
	return t.tx
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return coreerrors.New(coreerrors.ErrCodeGraphOpen, "failed to commit transaction", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return coreerrors.New(coreerrors.ErrCodeGraphOpen, "failed to roll back transaction", err)
	}
	return nil
}

// EnsureProject returns the project row for rootPath, creating it if absent.
func (t *Tx) EnsureProject(ctx context.Context, rootPath string) (*Project, error) {
	p, err := t.getProject(ctx, rootPath)
	if err == nil {
		return p, nil
	}
	if !coreerrors.IsNotFound(err) {
		return nil, err
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO projects (root_path) VALUES (?)`, rootPath)
	if err != nil {
		return nil, wrapGraphErr("create project", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapGraphErr("read project id", err)
	}
	return &Project{ID: id, RootPath: rootPath}, nil
}

func (t *Tx) getProject(ctx context.Context, rootPath string) (*Project, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, root_path, last_scan_timestamp, last_file_count FROM projects WHERE root_path = ?`,
		rootPath)

	var (
		p          Project
		lastScan   sql.NullInt64
		fileCount  sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.RootPath, &lastScan, &fileCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, coreerrors.EntityNotFoundError("project not found: "+rootPath, nil)
		}
		return nil, wrapGraphErr("load project", err)
	}
	if lastScan.Valid {
		ts := time.Unix(lastScan.Int64, 0).UTC()
		p.LastScanTimestamp = &ts
	}
	if fileCount.Valid {
		n := int(fileCount.Int64)
		p.LastFileCount = &n
	}
	return &p, nil
}

// SetWatermark persists the watermark and the observed file count. Sync
// calls it at the end of every successful pass, full or watermark-limited.
func (t *Tx) SetWatermark(ctx context.Context, projectID int64, scannedAt time.Time, fileCount int) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE projects SET last_scan_timestamp = ?, last_file_count = ? WHERE id = ?`,
		scannedAt.UTC().Unix(), fileCount, projectID)
	if err != nil {
		return wrapGraphErr("persist watermark", err)
	}
	return nil
}

// InvalidateWatermark clears the watermark, forcing the next sync to do a
// full scan.
func (t *Tx) InvalidateWatermark(ctx context.Context, projectID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE projects SET last_scan_timestamp = NULL, last_file_count = NULL WHERE id = ?`,
		projectID)
	if err != nil {
		return wrapGraphErr("invalidate watermark", err)
	}
	return nil
}

// UpsertEntity inserts or updates the entity row for e.FilePath.
func (t *Tx) UpsertEntity(ctx context.Context, e *Entity) (*Entity, error) {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	existing, err := t.GetByFilePath(ctx, e.ProjectID, e.FilePath)
	if err != nil && !coreerrors.IsNotFound(err) {
		return nil, err
	}

	if existing != nil {
		_, err := t.tx.ExecContext(ctx, `
			UPDATE entities
			SET permalink = ?, title = ?, entity_type = ?, content_type = ?,
			    checksum = ?, updated_at = ?
			WHERE id = ?`,
			nullableStr(e.Permalink), e.Title, e.EntityType, e.ContentType,
			nullableStr(e.Checksum), e.UpdatedAt.Unix(), existing.ID)
		if err != nil {
			return nil, wrapGraphErr("update entity", err)
		}
		e.ID = existing.ID
		e.CreatedAt = existing.CreatedAt
		return e, nil
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO entities
			(project_id, file_path, permalink, title, entity_type, content_type,
			 checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.FilePath, nullableStr(e.Permalink), e.Title, e.EntityType,
		e.ContentType, nullableStr(e.Checksum), e.CreatedAt.Unix(), e.UpdatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, coreerrors.New(coreerrors.ErrCodePermalinkCollision,
				"permalink or file path already in use", err)
		}
		return nil, wrapGraphErr("insert entity", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapGraphErr("read entity id", err)
	}
	e.ID = id
	return e, nil
}

// UpdateFilePath retargets an entity to a new path, preserving id,
// permalink, and checksum — used for moves.
func (t *Tx) UpdateFilePath(ctx context.Context, entityID int64, newPath string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE entities SET file_path = ?, updated_at = ? WHERE id = ?`,
		newPath, time.Now().UTC().Unix(), entityID)
	if err != nil {
		return wrapGraphErr("update entity file path", err)
	}
	return nil
}

// UpdatePermalink rewrites an entity's permalink in place, used when a move
// regenerates the permalink from the new path under update_permalinks_on_move.
func (t *Tx) UpdatePermalink(ctx context.Context, entityID int64, permalink *string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE entities SET permalink = ?, updated_at = ? WHERE id = ?`,
		nullableStr(permalink), time.Now().UTC().Unix(), entityID)
	if err != nil {
		if isUniqueViolation(err) {
			return coreerrors.New(coreerrors.ErrCodePermalinkCollision,
				"permalink already in use", err)
		}
		return wrapGraphErr("update entity permalink", err)
	}
	return nil
}

// GetByID loads an entity by its primary key, scoped to projectID so a
// cached lookup can never cross project boundaries.
func (t *Tx) GetByID(ctx context.Context, projectID, id int64) (*Entity, error) {
	row := t.tx.QueryRowContext(ctx, entitySelect+` WHERE project_id = ? AND id = ?`,
		projectID, id)
	return scanEntity(row)
}

func (t *Tx) GetByFilePath(ctx context.Context, projectID int64, filePath string) (*Entity, error) {
	row := t.tx.QueryRowContext(ctx, entitySelect+` WHERE project_id = ? AND file_path = ?`,
		projectID, filePath)
	return scanEntity(row)
}

func (t *Tx) GetByPermalink(ctx context.Context, projectID int64, permalink string) (*Entity, error) {
	row := t.tx.QueryRowContext(ctx, entitySelect+` WHERE project_id = ? AND permalink = ?`,
		projectID, permalink)
	return scanEntity(row)
}

func (t *Tx) GetByPermalinkCaseInsensitive(ctx context.Context, projectID int64, permalink string) (*Entity, error) {
	row := t.tx.QueryRowContext(ctx,
		entitySelect+` WHERE project_id = ? AND permalink IS NOT NULL AND LOWER(permalink) = LOWER(?)`,
		projectID, permalink)
	return scanEntity(row)
}

func (t *Tx) GetByTitle(ctx context.Context, projectID int64, title string, caseInsensitive bool) (*Entity, error) {
	query := entitySelect + ` WHERE project_id = ? AND title = ?`
	if caseInsensitive {
		query = entitySelect + ` WHERE project_id = ? AND LOWER(title) = LOWER(?)`
	}
	row := t.tx.QueryRowContext(ctx, query, projectID, title)
	return scanEntity(row)
}

// ListByProject returns every entity in a project, including those with a
// null permalink, used to load the sync orchestrator's baseline state.
func (t *Tx) ListByProject(ctx context.Context, projectID int64) ([]*Entity, error) {
	rows, err := t.tx.QueryContext(ctx, entitySelect+` WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, wrapGraphErr("list entities by project", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntityRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByPermalinkPrefix returns entities whose permalink starts with prefix,
// ordered by permalink length then lexically, for deterministic collision
// suffixing and fuzzy-resolution tie-breaking.
func (t *Tx) ListByPermalinkPrefix(ctx context.Context, projectID int64, prefix string) ([]*Entity, error) {
	rows, err := t.tx.QueryContext(ctx,
		entitySelect+` WHERE project_id = ? AND permalink IS NOT NULL AND permalink LIKE ? ESCAPE '\'
			ORDER BY LENGTH(permalink), permalink`,
		projectID, escapeLike(prefix)+"%")
	if err != nil {
		return nil, wrapGraphErr("list entities by permalink prefix", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntityRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteByFilePath cascades to observations and relations via foreign
// keys. Idempotent: deleting an absent path is not an error.
func (t *Tx) DeleteByFilePath(ctx context.Context, projectID int64, filePath string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM entities WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	if err != nil {
		return wrapGraphErr("delete entity", err)
	}
	return nil
}

// ReplaceObservations deletes existing rows for entityID and bulk-inserts
// the new set.
func (t *Tx) ReplaceObservations(ctx context.Context, entityID int64, obs []Observation) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM observations WHERE entity_id = ?`, entityID); err != nil {
		return wrapGraphErr("clear observations", err)
	}

	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT INTO observations (entity_id, category, content, tags, context) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return wrapGraphErr("prepare observation insert", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		tagsJSON, err := json.Marshal(o.Tags)
		if err != nil {
			return wrapGraphErr("marshal observation tags", err)
		}
		if _, err := stmt.ExecContext(ctx, entityID, nullableStr(o.Category), o.Content,
			string(tagsJSON), nullableStr(o.Context)); err != nil {
			return wrapGraphErr("insert observation", err)
		}
	}
	return nil
}

// ReplaceOutgoingRelations deletes outgoing edges for fromID and inserts
// each new edge, swallowing the per-row uniqueness violation so duplicate
// links within the same file are tolerated rather than aborting the sync.
func (t *Tx) ReplaceOutgoingRelations(ctx context.Context, fromID int64, rels []Relation) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM relations WHERE from_id = ?`, fromID); err != nil {
		return wrapGraphErr("clear relations", err)
	}

	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT INTO relations (from_id, to_id, to_name, relation_type, context) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return wrapGraphErr("prepare relation insert", err)
	}
	defer stmt.Close()

	for _, r := range rels {
		_, err := stmt.ExecContext(ctx, fromID, nullableInt(r.ToID), r.ToName, r.RelationType, nullableStr(r.Context))
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return wrapGraphErr("insert relation", err)
		}
	}
	return nil
}

// FindUnresolvedRelations returns every relation with a null to_id, for
// the resolution sweep.
func (t *Tx) FindUnresolvedRelations(ctx context.Context, projectID int64) ([]*Relation, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT r.id, r.from_id, r.to_id, r.to_name, r.relation_type, r.context
		FROM relations r
		JOIN entities e ON e.id = r.from_id
		WHERE e.project_id = ? AND r.to_id IS NULL`, projectID)
	if err != nil {
		return nil, wrapGraphErr("query unresolved relations", err)
	}
	defer rows.Close()

	var out []*Relation
	for rows.Next() {
		var (
			r      Relation
			toID   sql.NullInt64
			ctxVal sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.FromID, &toID, &r.ToName, &r.RelationType, &ctxVal); err != nil {
			return nil, wrapGraphErr("scan unresolved relation", err)
		}
		if toID.Valid {
			v := toID.Int64
			r.ToID = &v
		}
		if ctxVal.Valid {
			v := ctxVal.String
			r.Context = &v
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ResolveRelation sets to_id on a previously-unresolved relation.
func (t *Tx) ResolveRelation(ctx context.Context, relationID, toID int64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE relations SET to_id = ? WHERE id = ?`, toID, relationID)
	if err != nil {
		return wrapGraphErr("resolve relation", err)
	}
	return nil
}

// ListObservations returns every observation owned by entityID, used to
// rebuild a search-index document without re-parsing the source file.
func (t *Tx) ListObservations(ctx context.Context, entityID int64) ([]Observation, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, entity_id, category, content, tags, context FROM observations WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, wrapGraphErr("query observations", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var (
			o        Observation
			category sql.NullString
			tagsJSON string
			ctxVal   sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.EntityID, &category, &o.Content, &tagsJSON, &ctxVal); err != nil {
			return nil, wrapGraphErr("scan observation", err)
		}
		if category.Valid {
			v := category.String
			o.Category = &v
		}
		if ctxVal.Valid {
			v := ctxVal.String
			o.Context = &v
		}
		if tagsJSON != "" {
			if err := json.Unmarshal([]byte(tagsJSON), &o.Tags); err != nil {
				return nil, wrapGraphErr("unmarshal observation tags", err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListOutgoingRelations returns every relation with fromID as its source,
// resolved or not, used to rebuild a search-index document without
// re-parsing the source file.
func (t *Tx) ListOutgoingRelations(ctx context.Context, fromID int64) ([]Relation, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, from_id, to_id, to_name, relation_type, context FROM relations WHERE from_id = ?`, fromID)
	if err != nil {
		return nil, wrapGraphErr("query relations", err)
	}
	defer rows.Close()

	var out []Relation
	for rows.Next() {
		var (
			r      Relation
			toID   sql.NullInt64
			ctxVal sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.FromID, &toID, &r.ToName, &r.RelationType, &ctxVal); err != nil {
			return nil, wrapGraphErr("scan relation", err)
		}
		if toID.Valid {
			v := toID.Int64
			r.ToID = &v
		}
		if ctxVal.Valid {
			v := ctxVal.String
			r.Context = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const entitySelect = `
	SELECT id, project_id, file_path, permalink, title, entity_type, content_type,
	       checksum, created_at, updated_at
	FROM entities`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row *sql.Row) (*Entity, error) {
	return scanEntityRow(row)
}

func scanEntityRow(row rowScanner) (*Entity, error) {
	var (
		e           Entity
		permalink   sql.NullString
		checksum    sql.NullString
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(&e.ID, &e.ProjectID, &e.FilePath, &permalink, &e.Title, &e.EntityType,
		&e.ContentType, &checksum, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, coreerrors.EntityNotFoundError("entity not found", nil)
		}
		return nil, wrapGraphErr("scan entity", err)
	}
	if permalink.Valid {
		v := permalink.String
		e.Permalink = &v
	}
	if checksum.Valid {
		v := checksum.String
		e.Checksum = &v
	}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &e, nil
}

func scanEntityRows(rows *sql.Rows) (*Entity, error) {
	return scanEntityRow(rows)
}

func nullableStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func wrapGraphErr(op string, err error) error {
	return coreerrors.New(coreerrors.ErrCodeIntegrityViolation, "graph: "+op, err)
}
