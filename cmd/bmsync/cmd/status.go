package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/basic-memory/bmsync/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show knowledge graph health and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	log := newLogger()
	p, err := openProject(log)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	info, err := collectStatus(cmd.Context(), p)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, p *project) (ui.StatusInfo, error) {
	info := ui.StatusInfo{ProjectName: filepath.Base(p.root)}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return info, err
	}
	defer tx.Rollback()

	proj, err := tx.EnsureProject(ctx, p.root)
	if err != nil {
		return info, err
	}
	if proj.LastScanTimestamp != nil {
		info.LastSynced = *proj.LastScanTimestamp
	}

	entities, err := tx.ListByProject(ctx, proj.ID)
	if err != nil {
		return info, err
	}
	info.TotalEntities = len(entities)

	unresolved, err := tx.FindUnresolvedRelations(ctx, proj.ID)
	if err != nil {
		return info, err
	}
	info.UnresolvedLinks = len(unresolved)

	db := p.store.DB()
	_ = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`).Scan(&info.TotalObservations)
	_ = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relations`).Scan(&info.TotalRelations)

	// The search index lives inside the same SQLite file as the graph, so
	// there is no separate size to report for it.
	dataDir := filepath.Join(p.root, dataDirName)
	info.GraphSize = fileSize(filepath.Join(dataDir, "graph.db"))
	info.TotalSize = info.GraphSize

	info.WatcherStatus = "n/a"
	return info, nil
}

func fileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}
