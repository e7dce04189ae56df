package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo contains knowledge-graph health information.
type StatusInfo struct {
	// Graph stats
	ProjectName      string    `json:"project_name"`
	TotalEntities    int       `json:"total_entities"`
	TotalObservations int      `json:"total_observations"`
	TotalRelations   int       `json:"total_relations"`
	UnresolvedLinks  int       `json:"unresolved_links"`
	LastSynced       time.Time `json:"last_synced"`

	// Storage sizes (in bytes)
	GraphSize int64 `json:"graph_size"`
	IndexSize int64 `json:"index_size"`
	TotalSize int64 `json:"total_size"`

	// Component status
	WatcherStatus string `json:"watcher_status"` // "running", "stopped", "n/a"
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	// Header
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Graph Status: "+info.ProjectName))

	// Graph stats
	_, _ = fmt.Fprintf(r.out, "  Entities:     %d\n", info.TotalEntities)
	_, _ = fmt.Fprintf(r.out, "  Observations: %d\n", info.TotalObservations)
	_, _ = fmt.Fprintf(r.out, "  Relations:    %d\n", info.TotalRelations)
	if info.UnresolvedLinks > 0 {
		_, _ = fmt.Fprintf(r.out, "  Unresolved:   %s\n", r.styles.Warning.Render(fmt.Sprintf("%d", info.UnresolvedLinks)))
	}
	if !info.LastSynced.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last synced:  %s\n", formatTime(info.LastSynced))
	}
	_, _ = fmt.Fprintln(r.out)

	// Storage sizes
	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Graph:  %s\n", FormatBytes(info.GraphSize))
	_, _ = fmt.Fprintf(r.out, "    Index:  %s\n", FormatBytes(info.IndexSize))
	_, _ = fmt.Fprintf(r.out, "    Total:  %s\n", FormatBytes(info.TotalSize))
	_, _ = fmt.Fprintln(r.out)

	// Watcher status
	if info.WatcherStatus != "" && info.WatcherStatus != "n/a" {
		_, _ = fmt.Fprintf(r.out, "  Watcher: %s\n", r.renderStatus(info.WatcherStatus))
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "running":
		return r.styles.Success.Render(status)
	case "offline", "stopped":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
