// Package graph owns the entity/observation/relation tables backing a
// project's knowledge graph. It is the single source of truth the search
// index and link resolver mirror from.
package graph
