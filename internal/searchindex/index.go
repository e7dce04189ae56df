package searchindex

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	coreerrors "github.com/basic-memory/bmsync/internal/errors"
)

const schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS search_fts USING fts5(
	doc_id UNINDEXED,
	doc_type UNINDEXED,
	title,
	content,
	permalink UNINDEXED,
	file_path UNINDEXED,
	entity_id UNINDEXED,
	entity_type UNINDEXED,
	to_id UNINDEXED,
	relation_type UNINDEXED,
	category UNINDEXED,
	created_at UNINDEXED,
	updated_at UNINDEXED,
	tokenize = 'unicode61'
);
`

// Execer is the subset of *sql.DB / *sql.Tx the index needs to mutate its
// rows. Write methods take one explicitly so a reindex performed during a
// sync pass rides on the caller's graph transaction instead of opening a
// second connection against a pool that only ever holds one (graph.Store
// sets SetMaxOpenConns(1); a nested BeginTx on the same *sql.DB would block
// forever waiting for a connection the outer transaction is holding).
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Index is the FTS5-backed mirror of the knowledge graph. It shares the
// project's sidecar database connection rather than opening a second file;
// reads (Search) use that connection directly since they run outside of
// any sync pass.
type Index struct {
	db *sql.DB
}

// Open attaches the search index to an already-open graph database
// connection and ensures its schema exists.
func Open(db *sql.DB) (*Index, error) {
	idx := &Index{db: db}
	if _, err := db.Exec(schema); err != nil {
		return nil, coreerrors.New(coreerrors.ErrCodeIndexFailed, "failed to create search index schema", err)
	}
	return idx, nil
}

// IndexEntity re-writes the entity row plus one row per observation and
// relation. It is write-through: called on every successful file sync,
// through the same transaction that wrote the graph rows so the two never
// disagree if the transaction rolls back.
func (idx *Index) IndexEntity(ctx context.Context, exec Execer, doc *Document) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM search_fts WHERE entity_id = ?`, doc.EntityID); err != nil {
		return coreerrors.New(coreerrors.ErrCodeIndexFailed, "failed to clear existing index rows", err)
	}

	insert, err := exec.PrepareContext(ctx, `
		INSERT INTO search_fts
			(doc_id, doc_type, title, content, permalink, file_path, entity_id,
			 entity_type, to_id, relation_type, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return coreerrors.New(coreerrors.ErrCodeIndexFailed, "failed to prepare index insert", err)
	}
	defer insert.Close()

	created, updated := doc.CreatedAt.UTC().Unix(), doc.UpdatedAt.UTC().Unix()

	entityDocID := fmt.Sprintf("entity:%d", doc.EntityID)
	if _, err := insert.ExecContext(ctx, entityDocID, string(DocEntity), doc.Title, doc.Content,
		doc.Permalink, doc.FilePath, doc.EntityID, doc.EntityType, nil, "", "", created, updated); err != nil {
		return coreerrors.New(coreerrors.ErrCodeIndexFailed, "failed to index entity row", err)
	}

	for i, o := range doc.Observations {
		docID := fmt.Sprintf("obs:%d:%d", doc.EntityID, i)
		if _, err := insert.ExecContext(ctx, docID, string(DocObservation), doc.Title, o.Content,
			doc.Permalink, doc.FilePath, doc.EntityID, doc.EntityType, nil, "", o.Category, created, updated); err != nil {
			return coreerrors.New(coreerrors.ErrCodeIndexFailed, "failed to index observation row", err)
		}
	}

	for i, r := range doc.Relations {
		docID := fmt.Sprintf("rel:%d:%d", doc.EntityID, i)
		var toID any
		if r.ToID != nil {
			toID = *r.ToID
		}
		if _, err := insert.ExecContext(ctx, docID, string(DocRelation), doc.Title, r.Content,
			doc.Permalink, doc.FilePath, doc.EntityID, doc.EntityType, toID, r.RelationType, "", created, updated); err != nil {
			return coreerrors.New(coreerrors.ErrCodeIndexFailed, "failed to index relation row", err)
		}
	}

	return nil
}

// DeleteByPermalink removes every row mirroring the entity at permalink.
func (idx *Index) DeleteByPermalink(ctx context.Context, exec Execer, permalink string) error {
	_, err := exec.ExecContext(ctx, `DELETE FROM search_fts WHERE permalink = ?`, permalink)
	if err != nil {
		return coreerrors.New(coreerrors.ErrCodeIndexFailed, "failed to delete indexed rows", err)
	}
	return nil
}

// DeleteByEntityID removes every row for one entity, used on cascading
// delete and before re-indexing.
func (idx *Index) DeleteByEntityID(ctx context.Context, exec Execer, entityID int64) error {
	_, err := exec.ExecContext(ctx, `DELETE FROM search_fts WHERE entity_id = ?`, entityID)
	if err != nil {
		return coreerrors.New(coreerrors.ErrCodeIndexFailed, "failed to delete indexed rows", err)
	}
	return nil
}

// Search runs a query against the index. Free-text tokens are prefix
// matched on title and content; special characters are quoted so FTS5
// treats them as literal rather than syntax.
func (idx *Index) Search(ctx context.Context, q Query) ([]Hit, error) {
	var (
		conditions []string
		args       []any
	)

	if strings.TrimSpace(q.Text) != "" {
		conditions = append(conditions, "search_fts MATCH ?")
		args = append(args, prefixMatchQuery(q.Text))
	}
	if q.Type != "" {
		conditions = append(conditions, "doc_type = ?")
		args = append(args, string(q.Type))
	}
	if q.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, q.EntityType)
	}
	if q.PermalinkGlob != "" {
		conditions = append(conditions, "permalink GLOB ?")
		args = append(args, q.PermalinkGlob)
	}
	if !q.AfterDate.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, q.AfterDate.UTC().Unix())
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT rowid, doc_type, title, content, permalink, file_path, entity_id,
		       entity_type, updated_at, bm25(search_fts) AS score
		FROM search_fts
		%s
		ORDER BY score, updated_at DESC
		LIMIT %d`, where, limit)

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, coreerrors.New(coreerrors.ErrCodeIndexFailed, "search query failed", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h         Hit
			updatedAt int64
			docType   string
		)
		if err := rows.Scan(&h.ID, &docType, &h.Title, &h.Content, &h.Permalink,
			&h.FilePath, &h.EntityID, &h.EntityType, &updatedAt, &h.Score); err != nil {
			return nil, coreerrors.New(coreerrors.ErrCodeIndexFailed, "failed to scan search result", err)
		}
		h.Type = DocType(docType)
		h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		h.Score = -h.Score // bm25() is negative-is-better; flip so higher is better
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// prefixMatchQuery quotes special characters so they're matched literally,
// then appends "*" to every token for prefix matching.
func prefixMatchQuery(text string) string {
	fields := strings.Fields(text)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.ContainsAny(f, "/-") {
			terms = append(terms, strconv.Quote(f)+"*")
		} else {
			terms = append(terms, f+"*")
		}
	}
	return strings.Join(terms, " ")
}
