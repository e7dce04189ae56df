// Package gitignore matches file paths against .gitignore/.bmignore style
// patterns, as documented at https://git-scm.com/docs/gitignore. The
// project scanner and the file watcher both use it to keep sync passes
// from touching build output, editor state, and other untracked noise.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds a compiled set of ignore patterns and answers Match calls
// concurrently; AddPattern calls take a write lock so patterns discovered
// mid-scan (a nested .gitignore found while walking) can be merged in
// without rebuilding the whole matcher.
type Matcher struct {
	mu   sync.RWMutex
	pats []pattern
}

// pattern is one compiled ignore rule.
type pattern struct {
	raw      string         // pattern text after negation/anchor stripping, pre-regex
	re       *regexp.Regexp // compiled matcher
	negate   bool           // "!pattern"
	dirOnly  bool           // "pattern/"
	anchored bool           // "/pattern" or contains an internal "/"
	scope    string         // directory this rule is confined to, "" for project root
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// AddPattern adds a project-root pattern.
func (m *Matcher) AddPattern(line string) {
	m.AddPatternWithBase(line, "")
}

// AddPatternWithBase adds a pattern that only applies to paths under scope
// (e.g. patterns loaded from a .gitignore several directories deep).
func (m *Matcher) AddPatternWithBase(line, scope string) {
	trailingSpaceEscaped := strings.HasSuffix(line, `\ `)
	line = strings.TrimSpace(line)

	if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`)) {
		return
	}

	p := pattern{scope: scope}

	switch {
	case strings.HasPrefix(line, `\#`):
		line = strings.TrimPrefix(line, `\`)
	case strings.HasPrefix(line, `\!`):
		line = strings.TrimPrefix(line, `\`)
	case strings.HasPrefix(line, "!"):
		p.negate = true
		line = strings.TrimPrefix(line, "!")
	}

	if trailingSpaceEscaped && strings.HasSuffix(line, `\`) {
		// the escaped trailing space survived TrimSpace as a bare backslash
		line = strings.TrimSuffix(line, `\`) + " "
	}

	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = strings.TrimPrefix(line, "/")
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") && !strings.HasPrefix(line, "*") {
		// "doc/frotz" means "/doc/frotz", not "**/doc/frotz"
		p.anchored = true
	}

	p.raw = line
	p.re = regexp.MustCompile("^" + globToRegex(line) + "$")

	m.mu.Lock()
	m.pats = append(m.pats, p)
	m.mu.Unlock()
}

// AddFromFile loads one pattern per line from an ignore file, scoped to base.
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPatternWithBase(scanner.Text(), base)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ignore file: %w", err)
	}
	return nil
}

// Match reports whether path should be excluded from the scan. Later
// patterns take precedence, so a negated rule after a broad match un-ignores
// the path, and a later non-negated rule can re-ignore it again.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ignored bool
	for _, p := range m.pats {
		if p.matches(path, isDir) {
			ignored = !p.negate
		}
	}
	return ignored
}

// matches reports whether p applies to path. A directory-only pattern
// matches both the directory itself and anything inside it.
func (p pattern) matches(path string, isDir bool) bool {
	if p.scope != "" {
		if path != p.scope && !strings.HasPrefix(path, p.scope+"/") {
			return false
		}
		if path == p.scope {
			path = filepath.Base(path)
		} else {
			path = strings.TrimPrefix(path, p.scope+"/")
		}
	}

	parts := strings.Split(path, "/")
	basename := parts[len(parts)-1]

	if p.anchored {
		if p.re.MatchString(path) {
			return !p.dirOnly || isDir
		}
		if p.dirOnly {
			for i := range parts[:len(parts)-1] {
				if p.re.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if p.dirOnly {
		for i, part := range parts {
			if !p.re.MatchString(part) {
				continue
			}
			if i == len(parts)-1 {
				return isDir
			}
			return true
		}
		return false
	}

	if p.re.MatchString(basename) || p.re.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if p.re.MatchString(part) {
			return true
		}
	}
	return false
}

// globToRegex translates a single gitignore glob segment into the regex
// body it's anchored inside of (callers wrap it in ^...$).
func globToRegex(glob string) string {
	var out strings.Builder

	i := 0
	for i < len(glob) {
		c := glob[i]

		switch c {
		case '*':
			switch {
			case i+1 < len(glob) && glob[i+1] == '*' && i+2 < len(glob) && glob[i+2] == '/':
				out.WriteString("(?:.*/)?")
				i += 3
			case i+1 < len(glob) && glob[i+1] == '*' && (i == 0 || glob[i-1] == '/'):
				out.WriteString(".*")
				i += 2
			default:
				out.WriteString("[^/]*")
				i++
			}

		case '?':
			out.WriteString("[^/]")
			i++

		case '[':
			j := i + 1
			for j < len(glob) && glob[j] != ']' {
				j++
			}
			if j < len(glob) {
				out.WriteString(glob[i : j+1])
				i = j + 1
			} else {
				out.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '\\':
			if i+1 < len(glob) {
				out.WriteString(regexp.QuoteMeta(string(glob[i+1])))
				i += 2
			} else {
				out.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '.', '+', '^', '$', '(', ')', '{', '}', '|':
			out.WriteString(regexp.QuoteMeta(string(c)))
			i++

		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String()
}

// ParsePatterns extracts the non-empty, non-comment pattern lines from raw
// ignore-file content, preserving order.
func ParsePatterns(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`)) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// DiffPatterns compares two ignore-file contents and reports which pattern
// lines were added and which were removed, used when a project's .bmignore
// changes mid-watch and the scanner needs to reconcile previously-skipped
// paths without a full rescan.
func DiffPatterns(oldContent, newContent string) (added, removed []string) {
	oldSet := make(map[string]bool)
	for _, p := range ParsePatterns(oldContent) {
		oldSet[p] = true
	}
	newSet := make(map[string]bool)
	for _, p := range ParsePatterns(newContent) {
		newSet[p] = true
	}

	for _, p := range ParsePatterns(newContent) {
		if !oldSet[p] {
			added = append(added, p)
		}
	}
	for _, p := range ParsePatterns(oldContent) {
		if !newSet[p] {
			removed = append(removed, p)
		}
	}
	return added, removed
}

// MatchesAnyPattern reports whether path matches any of patterns, applied
// as project-root rules. Used to test a single added/removed pattern
// against a path without building a full Matcher from a whole file.
func MatchesAnyPattern(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	m := New()
	for _, p := range patterns {
		m.AddPattern(p)
	}
	return m.Match(path, false)
}
