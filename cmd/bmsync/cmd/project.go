package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/basic-memory/bmsync/internal/config"
	"github.com/basic-memory/bmsync/internal/filestore"
	"github.com/basic-memory/bmsync/internal/graph"
	"github.com/basic-memory/bmsync/internal/projectscan"
	"github.com/basic-memory/bmsync/internal/resolver"
	"github.com/basic-memory/bmsync/internal/searchindex"
	bmsync "github.com/basic-memory/bmsync/internal/sync"
)

// dataDirName is the project-local directory holding the graph database
// and lock file; always excluded from scans (see PathsConfig defaults).
const dataDirName = ".bmdata"

// project bundles the wired components a CLI command needs to operate on
// one project root.
type project struct {
	root  string
	cfg   *config.Config
	store *graph.Store
	files *filestore.Store
	index *searchindex.Index
	svc   *bmsync.Service
}

func (p *project) Close() error {
	return p.store.Close()
}

// openProject resolves the project root from the working directory, loads
// its configuration, and wires the graph store, search index, resolver,
// scanner, and sync service around it.
func openProject(log *slog.Logger) (*project, error) {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	dataDir := filepath.Join(root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dataDirName, err)
	}

	store, err := graph.Open(filepath.Join(dataDir, "graph.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open graph database: %w", err)
	}

	idx, err := searchindex.Open(store.DB())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}

	res, err := resolver.New()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create link resolver: %w", err)
	}

	scanner, err := projectscan.New()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create project scanner: %w", err)
	}

	files := filestore.New(root)

	svc := bmsync.New(root, filepath.Join(dataDir, "sync.lock"), store, files, idx, res, scanner, bmsync.Config{
		UpdatePermalinksOnMove:  cfg.Sync.UpdatePermalinksOnMove,
		WatermarkEpsilonMS:      cfg.Sync.WatermarkEpsilonMS,
		CircuitBreakerThreshold: cfg.Sync.CircuitBreakerThreshold,
		MaxConcurrentFiles:      cfg.Sync.MaxConcurrentFiles,
	}, log)

	return &project{root: root, cfg: cfg, store: store, files: files, index: idx, svc: svc}, nil
}
