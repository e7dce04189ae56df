package markdown

import "strings"

// Observation is a single categorized bullet extracted from a note body.
type Observation struct {
	Category string
	Content  string
	Tags     []string
	Context  string
}

// Relation is a directed, typed wiki-link extracted from a note body.
// Target is the raw link text (permalink, file path, or title fragment);
// resolving it to a concrete entity is the link resolver's job, not the
// parser's.
type Relation struct {
	RelationType string
	Target       string
	Context      string
}

// EntityMarkdown is the structured result of parsing one note.
type EntityMarkdown struct {
	Frontmatter  map[string]any
	Body         string
	Observations []Observation
	Relations    []Relation
}

// maxObservationContentLength bounds an observation's content, per the
// entity model's ≤1000-char invariant. Longer content is truncated rather
// than rejected, consistent with the parser's tolerant-degrade contract.
const maxObservationContentLength = 1000

// FrontmatterString returns a string frontmatter field, or "" if absent
// or not a string.
func (e *EntityMarkdown) FrontmatterString(key string) string {
	v, ok := e.Frontmatter[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Tags returns the frontmatter `tags` field normalized to a string slice.
// Accepts a YAML list, a comma-separated string, or absence (empty slice).
func (e *EntityMarkdown) Tags() []string {
	return normalizeTags(e.Frontmatter["tags"])
}

func normalizeTags(raw any) []string {
	switch v := raw.(type) {
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	case []string:
		return v
	case string:
		var tags []string
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				tags = append(tags, part)
			}
		}
		return tags
	default:
		return nil
	}
}
