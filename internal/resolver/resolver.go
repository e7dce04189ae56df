package resolver

import (
	"context"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/basic-memory/bmsync/internal/graph"
)

// cacheSize bounds how many permalink -> entity id mappings are cached per
// resolver instance.
const cacheSize = 2000

// EntityLookup is the subset of *graph.Tx the resolver depends on, so it can
// be exercised against either a live transaction or a test double.
type EntityLookup interface {
	GetByID(ctx context.Context, projectID, id int64) (*graph.Entity, error)
	GetByPermalink(ctx context.Context, projectID int64, permalink string) (*graph.Entity, error)
	GetByPermalinkCaseInsensitive(ctx context.Context, projectID int64, permalink string) (*graph.Entity, error)
	GetByFilePath(ctx context.Context, projectID int64, filePath string) (*graph.Entity, error)
	GetByTitle(ctx context.Context, projectID int64, title string, caseInsensitive bool) (*graph.Entity, error)
	ListByPermalinkPrefix(ctx context.Context, projectID int64, prefix string) ([]*graph.Entity, error)
}

// Resolver implements the five-step link resolution order: exact permalink,
// case-insensitive permalink, exact file path, title (exact then
// case-insensitive), then fuzzy permalink-prefix/filename-stem matching.
type Resolver struct {
	cache *lru.Cache[cacheKey, int64]
}

type cacheKey struct {
	projectID int64
	permalink string
}

// New creates a Resolver with its own permalink -> entity id cache.
func New() (*Resolver, error) {
	cache, err := lru.New[cacheKey, int64](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{cache: cache}, nil
}

// Resolve maps target to an existing entity, or returns (nil, false) if
// nothing in the project matches. It never creates entities.
func (r *Resolver) Resolve(ctx context.Context, tx EntityLookup, projectID int64, target string) (*graph.Entity, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, false
	}

	if id, ok := r.cache.Get(cacheKey{projectID, target}); ok {
		if e, err := tx.GetByID(ctx, projectID, id); err == nil && e != nil {
			return e, true
		}
		r.cache.Remove(cacheKey{projectID, target})
	}

	if e, err := tx.GetByPermalink(ctx, projectID, target); err == nil && e != nil {
		r.remember(projectID, target, e.ID)
		return e, true
	}

	if e, err := tx.GetByPermalinkCaseInsensitive(ctx, projectID, target); err == nil && e != nil {
		r.remember(projectID, target, e.ID)
		return e, true
	}

	if e, err := tx.GetByFilePath(ctx, projectID, target); err == nil && e != nil {
		r.remember(projectID, target, e.ID)
		return e, true
	}

	if e, err := tx.GetByTitle(ctx, projectID, target, false); err == nil && e != nil {
		r.remember(projectID, target, e.ID)
		return e, true
	}
	if e, err := tx.GetByTitle(ctx, projectID, target, true); err == nil && e != nil {
		r.remember(projectID, target, e.ID)
		return e, true
	}

	if e, ok := r.fuzzyPermalinkPrefix(ctx, tx, projectID, target); ok {
		r.remember(projectID, target, e.ID)
		return e, true
	}

	if e, ok := r.fuzzyFilenameStem(ctx, tx, projectID, target); ok {
		r.remember(projectID, target, e.ID)
		return e, true
	}

	return nil, false
}

// Invalidate drops any cached mapping for permalink, used when an entity's
// permalink changes or is removed.
func (r *Resolver) Invalidate(projectID int64, permalink string) {
	r.cache.Remove(cacheKey{projectID, permalink})
}

func (r *Resolver) remember(projectID int64, target string, entityID int64) {
	r.cache.Add(cacheKey{projectID, target}, entityID)
}

func (r *Resolver) fuzzyPermalinkPrefix(ctx context.Context, tx EntityLookup, projectID int64, target string) (*graph.Entity, bool) {
	candidates, err := tx.ListByPermalinkPrefix(ctx, projectID, target)
	if err != nil || len(candidates) == 0 {
		return nil, false
	}
	return candidates[0], true
}

func (r *Resolver) fuzzyFilenameStem(ctx context.Context, tx EntityLookup, projectID int64, target string) (*graph.Entity, bool) {
	stem := filenameStem(target)
	if stem == "" {
		return nil, false
	}
	if e, err := tx.GetByTitle(ctx, projectID, stem, true); err == nil && e != nil {
		return e, true
	}
	if e, err := tx.GetByFilePath(ctx, projectID, stem); err == nil && e != nil {
		return e, true
	}
	return nil, false
}

func filenameStem(target string) string {
	base := path.Base(target)
	return strings.TrimSuffix(base, path.Ext(base))
}
