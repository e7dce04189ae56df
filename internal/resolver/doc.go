// Package resolver maps a free-form wiki-link target to a concrete entity,
// or reports it unresolved so the caller can leave a forward reference.
// It never creates entities.
package resolver
