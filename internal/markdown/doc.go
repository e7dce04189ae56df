// Package markdown parses a note's frontmatter, body, observations, and
// relations out of raw file bytes. Parsing is tolerant: a malformed field
// degrades to its default rather than aborting the whole file, mirroring
// the forgiving entity parser this package is modeled on.
package markdown
