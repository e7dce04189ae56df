package ui

// ansiStyle wraps text in an SGR color code when colors are enabled, and
// passes it through unchanged otherwise. Plain ANSI codes rather than a
// styling library: this CLI prints status lines, not an interactive
// terminal UI.
type ansiStyle struct {
	code string
	bold bool
}

func (s ansiStyle) Render(text string) string {
	if s.code == "" && !s.bold {
		return text
	}
	prefix := "\x1b["
	if s.bold {
		prefix += "1;"
	}
	prefix += s.code + "m"
	return prefix + text + "\x1b[0m"
}

// Styles holds the styled components used by the plain and status renderers.
type Styles struct {
	Header  ansiStyle
	Success ansiStyle
	Warning ansiStyle
	Error   ansiStyle
	Dim     ansiStyle
	Label   ansiStyle
}

// DefaultStyles returns a colored palette for interactive terminals.
func DefaultStyles() Styles {
	return Styles{
		Header:  ansiStyle{code: "36", bold: true},
		Success: ansiStyle{code: "32"},
		Warning: ansiStyle{code: "33"},
		Error:   ansiStyle{code: "31"},
		Dim:     ansiStyle{code: "90"},
		Label:   ansiStyle{code: "37"},
	}
}

// NoColorStyles returns unstyled components for plain/non-terminal output.
func NoColorStyles() Styles {
	return Styles{}
}

// GetStyles returns the styles matching the noColor preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
