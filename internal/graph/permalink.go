package graph

import (
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var permalinkCollapse = regexp.MustCompile(`[_\s.]+`)

// DerivePermalink turns a project-relative file path into a project-unique,
// URL-safe slug: lowercased, with underscores/spaces/dots collapsed to a
// single hyphen, directory separators preserved, and the extension
// dropped.
func DerivePermalink(filePath string) string {
	clean := strings.TrimSuffix(filePath, path.Ext(filePath))
	clean = filepath.ToSlash(clean)

	segments := strings.Split(clean, "/")
	for i, seg := range segments {
		seg = strings.ToLower(seg)
		seg = permalinkCollapse.ReplaceAllString(seg, "-")
		segments[i] = strings.Trim(seg, "-")
	}
	return strings.Join(segments, "/")
}

// NextCollisionSuffix returns base unmodified if it doesn't appear in
// taken; otherwise it appends -1, -2, … until it finds one that doesn't.
func NextCollisionSuffix(base string, taken func(candidate string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := base + "-" + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}
