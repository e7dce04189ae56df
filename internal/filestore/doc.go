// Package filestore provides atomic file I/O for the sync engine: reading
// and writing project files with content checksums, plus frontmatter
// get/set that preserves unknown keys and body verbatim.
package filestore
