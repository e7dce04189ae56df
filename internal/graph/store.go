package graph

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	coreerrors "github.com/basic-memory/bmsync/internal/errors"
)

// Store owns the SQLite connection backing one project's knowledge graph.
// A single connection is held open (SetMaxOpenConns(1)): SQLite allows
// only one writer at a time, and the sync service's own exclusive-lock
// contract means concurrent readers would gain nothing here.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open creates or attaches to the sidecar database at path. An empty path
// opens an in-memory database, used by tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, coreerrors.FileOperationError(
				fmt.Sprintf("create directory for %s", path), err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrCodeGraphOpen,
			"failed to open graph database", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, coreerrors.New(coreerrors.ErrCodeGraphOpen,
				"failed to set pragma: "+p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Begin starts a transaction scoped to one sync_file call. The caller
// must Commit or Rollback; all repository mutations run through the
// returned Tx so readers never observe a half-updated entity.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrCodeGraphOpen,
			"failed to begin transaction", err)
	}
	return &Tx{tx: tx}, nil
}

// DB exposes the underlying connection for read-only queries that don't
// need single-file transaction scoping (e.g. search-index rebuilds).
func (s *Store) DB() *sql.DB {
	return s.db
}
