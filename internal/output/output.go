// Package output formats the plain (non-interactive) CLI output that
// bmsync's commands print to stdout: status lines, success/warning/error
// markers, and a progress bar for long-running scans.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer formats lines for a single output stream. bmsync's commands build
// one per invocation over cmd.OutOrStdout() so tests can capture output
// without touching the real terminal.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New returns a Writer over out. Color is off by default; bmsync's plain
// commands (sync, watch, init, config) don't need it, unlike the richer
// status renderer in internal/ui.
func New(out io.Writer) *Writer {
	return &Writer{out: out, useColor: false}
}

// Status prints msg prefixed with icon, or indented to align with iconed
// lines if icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf is Status with fmt.Sprintf-style formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints msg with a checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints msg with a warning marker.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints msg with an error marker.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints content as an indented block, blank-line delimited, for
// things like a rendered relation path or a config diff.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints a blank line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress redraws an in-place progress bar for a scan of total items,
// currently at current. A no-op when total is non-positive.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)

	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// ProgressDone ends a Progress sequence with a trailing newline.
func (w *Writer) ProgressDone() {
	_, _ = fmt.Fprintln(w.out)
}

func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	filled := int(float64(current) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
