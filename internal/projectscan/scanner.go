package projectscan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/basic-memory/bmsync/internal/gitignore"
)

// gitignoreCacheSize bounds how many per-directory matchers are cached.
const gitignoreCacheSize = 1000

// Scanner discovers indexable files in a project directory.
type Scanner struct {
	cache   *lru.Cache[string, *gitignore.Matcher]
	cacheMu sync.RWMutex
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create ignore-pattern cache: %w", err)
	}
	return &Scanner{cache: cache}, nil
}

// Scan streams every note file under opts.RootDir. The channel closes when
// the walk completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	results := make(chan ScanResult, 64)

	go func() {
		defer close(results)
		s.scan(ctx, absRoot, opts, results)
	}()

	return results, nil
}

func (s *Scanner) scan(ctx context.Context, absRoot string, opts *ScanOptions, results chan<- ScanResult) {
	watermarkCutoff := opts.Watermark
	if !watermarkCutoff.IsZero() {
		watermarkCutoff = watermarkCutoff.Add(-opts.WatermarkEpsilon)
	}

	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil
		}

		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}

		if hasHiddenSegment(relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.shouldExcludeDir(relPath, opts) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}

		if matchesBuiltinFilePattern(filepath.Base(relPath)) {
			return nil
		}

		if s.shouldExcludeFile(relPath, absRoot, opts) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}

		if info.Size() > DefaultMaxFileSize {
			return nil
		}

		if !watermarkCutoff.IsZero() && !info.ModTime().After(watermarkCutoff) {
			return nil
		}

		fileInfo := &FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		select {
		case results <- ScanResult{File: fileInfo}:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// hasHiddenSegment reports whether any path component is dotfile-hidden.
// Hidden files and directories are excluded unconditionally, independent
// of .gitignore/.bmignore and the ignore-pattern cache.
func hasHiddenSegment(relPath string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// matchesBuiltinFilePattern reports whether base matches the fixed
// built-in exclusion list (temporary/editor artefacts not covered by the
// hidden-file rule).
func matchesBuiltinFilePattern(base string) bool {
	for _, pattern := range builtinFilePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (s *Scanner) shouldExcludeDir(relPath string, opts *ScanOptions) bool {
	base := filepath.Base(relPath)
	for _, d := range defaultExcludeDirs {
		if base == d {
			return true
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func (s *Scanner) shouldExcludeFile(relPath, absRoot string, opts *ScanOptions) bool {
	for _, pattern := range opts.ExcludePatterns {
		if matchFilePattern(filepath.Base(relPath), relPath, pattern) {
			return true
		}
	}

	if opts.RespectGitignore && s.isIgnored(relPath, absRoot) {
		return true
	}

	return false
}

// isIgnored checks the root and every intermediate directory for
// .gitignore/.bmignore rules that cover relPath.
func (s *Scanner) isIgnored(relPath, absRoot string) bool {
	if m := s.matcherFor(absRoot, ""); m != nil && m.Match(relPath, false) {
		return true
	}

	parts := strings.Split(filepath.Dir(relPath), string(filepath.Separator))
	currentDir := absRoot
	currentBase := ""

	for _, part := range parts {
		if part == "." {
			continue
		}
		currentDir = filepath.Join(currentDir, part)
		if currentBase == "" {
			currentBase = part
		} else {
			currentBase = filepath.Join(currentBase, part)
		}

		if m := s.matcherFor(currentDir, currentBase); m != nil && m.Match(relPath, false) {
			return true
		}
	}

	return false
}

// matcherFor returns a merged .gitignore+.bmignore matcher for dir, caching
// the result keyed by directory.
func (s *Scanner) matcherFor(dir, base string) *gitignore.Matcher {
	s.cacheMu.RLock()
	m, ok := s.cache.Get(dir)
	s.cacheMu.RUnlock()
	if ok {
		return m
	}

	var found bool
	matcher := gitignore.New()
	for _, name := range []string{".gitignore", ".bmignore"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			if err := matcher.AddFromFile(p, base); err == nil {
				found = true
			}
		}
	}
	if !found {
		return nil
	}

	s.cacheMu.Lock()
	s.cache.Add(dir, matcher)
	s.cacheMu.Unlock()

	return matcher
}

// InvalidateCache clears cached ignore matchers, e.g. after a .gitignore or
// .bmignore file changes mid-watch.
func (s *Scanner) InvalidateCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Purge()
}

func matchDirPattern(relPath, pattern string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		suffix = strings.TrimSuffix(suffix, "/**")
		parts := strings.Split(relPath, string(filepath.Separator))
		for _, part := range parts {
			if part == suffix {
				return true
			}
		}
		return false
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	return relPath == pattern || strings.HasPrefix(relPath, pattern+string(filepath.Separator))
}

func matchFilePattern(baseName, relPath, pattern string) bool {
	if strings.HasSuffix(pattern, "/**") && !strings.HasPrefix(pattern, "**/") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if strings.HasPrefix(suffix, "*.") {
			ext := strings.TrimPrefix(suffix, "*")
			return strings.HasSuffix(baseName, ext)
		}
		parts := strings.Split(relPath, string(filepath.Separator))
		for _, part := range parts {
			if part == suffix {
				return true
			}
		}
		return false
	}

	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1 {
		middle := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")
		return strings.Contains(strings.ToLower(baseName), strings.ToLower(middle))
	}

	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(baseName, strings.TrimPrefix(pattern, "*"))
	}

	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(baseName, strings.TrimSuffix(pattern, "*"))
	}

	return baseName == pattern
}
