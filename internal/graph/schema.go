package graph

import (
	coreerrors "github.com/basic-memory/bmsync/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	root_path TEXT NOT NULL UNIQUE,
	last_scan_timestamp INTEGER,
	last_file_count INTEGER
);

CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	file_path TEXT NOT NULL,
	permalink TEXT,
	title TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT 'note',
	content_type TEXT NOT NULL,
	checksum TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(project_id, file_path)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_permalink
	ON entities(project_id, permalink) WHERE permalink IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_entities_title ON entities(project_id, title);

CREATE TABLE IF NOT EXISTS observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	category TEXT,
	content TEXT NOT NULL,
	tags TEXT,
	context TEXT
);

CREATE INDEX IF NOT EXISTS idx_observations_entity ON observations(entity_id);

CREATE TABLE IF NOT EXISTS relations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	to_id INTEGER REFERENCES entities(id) ON DELETE CASCADE,
	to_name TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	context TEXT,
	UNIQUE(from_id, to_id, relation_type)
);

CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_id);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_id);
CREATE INDEX IF NOT EXISTS idx_relations_unresolved ON relations(to_id) WHERE to_id IS NULL;

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return coreerrors.New(coreerrors.ErrCodeGraphOpen, "failed to apply graph schema", err)
	}
	return nil
}
