package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	coreerrors "github.com/basic-memory/bmsync/internal/errors"
	"github.com/basic-memory/bmsync/internal/searchindex"
)

func newSearchCmd() *cobra.Command {
	var entityType string
	var docType string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the full-text index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], entityType, docType, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&entityType, "type", "", "filter by entity type (note, file, ...)")
	cmd.Flags().StringVar(&docType, "doc-type", "", "filter by row kind (entity, observation, relation)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, text, entityType, docType string, limit int, jsonOutput bool) error {
	log := newLogger()
	p, err := openProject(log)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	hits, err := p.index.Search(cmd.Context(), searchindex.Query{
		Text:       text,
		EntityType: entityType,
		Type:       searchindex.DocType(docType),
		Limit:      limit,
	})
	if err != nil {
		return fmt.Errorf("%s", coreerrors.FormatForCLI(err))
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		_, _ = fmt.Fprintln(out, "no results")
		return nil
	}
	for _, h := range hits {
		_, _ = fmt.Fprintf(out, "%-6.2f %-10s %-30s %s\n", h.Score, h.Type, h.Title, h.Permalink)
	}
	return nil
}
