package markdown

import (
	"os"
	"strings"
	"time"
)

// ParseDate parses an ISO-8601 timestamp, permitting a trailing "Z". It
// returns false rather than an error so callers can fall back without
// threading an error kind through the tolerant-parsing path.
func ParseDate(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02T15:04:05Z", s); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// ResolveDates determines created/modified timestamps per the fallback
// chain: valid frontmatter values first, then filesystem stat times, then
// the current time if even the stat call fails.
func ResolveDates(fm map[string]any, absPath string) (created, modified time.Time) {
	if raw, ok := fm["created"]; ok {
		if t, ok := ParseDate(raw); ok {
			created = t
		}
	}
	if raw, ok := fm["modified"]; ok {
		if t, ok := ParseDate(raw); ok {
			modified = t
		}
	}

	if created.IsZero() || modified.IsZero() {
		if info, err := os.Stat(absPath); err == nil {
			if created.IsZero() {
				created = info.ModTime()
			}
			if modified.IsZero() {
				modified = info.ModTime()
			}
		}
	}

	now := time.Now()
	if created.IsZero() {
		created = now
	}
	if modified.IsZero() {
		modified = now
	}
	return created, modified
}
