// Package sync is the orchestrator that reconciles a project's filesystem
// with its knowledge graph and search index: it builds a change set from a
// scan, applies moves, deletions, and new/modified files in order, then
// sweeps for relations that can now resolve.
package sync
