// Package searchindex mirrors entities, observations, and relations into a
// SQLite FTS5 virtual table for prefix full-text search, kept write-through
// with the knowledge graph rather than rebuilt from it on every query.
package searchindex
