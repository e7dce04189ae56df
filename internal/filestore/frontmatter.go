package filestore

import (
	"bytes"
	"sort"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	coreerrors "github.com/basic-memory/bmsync/internal/errors"
)

// ReadFrontmatter parses a file's leading `---`-delimited YAML block (if
// any) and returns it alongside the body with the fence stripped. Missing
// frontmatter is legal: it returns an empty map and the file's full
// contents as the body.
func (s *Store) ReadFrontmatter(relPath string) (map[string]any, []byte, error) {
	data, _, err := s.Read(relPath)
	if err != nil {
		return nil, nil, err
	}
	return ParseFrontmatter(data)
}

// ParseFrontmatter decodes a frontmatter block from in-memory content,
// for callers (the markdown parser) that already have the bytes in hand.
func ParseFrontmatter(data []byte) (map[string]any, []byte, error) {
	meta := map[string]any{}
	body, err := frontmatter.Parse(bytes.NewReader(data), &meta)
	if err != nil {
		return nil, nil, coreerrors.ParseError(coreerrors.ErrCodeParseFrontmatter,
			"unterminated or malformed frontmatter block", err)
	}
	return meta, body, nil
}

// WriteFrontmatter merges updates into a file's existing frontmatter map,
// preserving every key it does not mention and the body verbatim, then
// atomically rewrites the file. Returns the checksum of the new bytes.
func (s *Store) WriteFrontmatter(relPath string, updates map[string]any) (string, error) {
	var (
		meta map[string]any
		body []byte
	)

	if s.Exists(relPath) {
		existing, existingBody, err := s.ReadFrontmatter(relPath)
		if err != nil {
			return "", err
		}
		meta, body = existing, existingBody
	} else {
		meta = map[string]any{}
	}

	for k, v := range updates {
		meta[k] = v
	}

	data, err := SerializeFrontmatter(meta, body)
	if err != nil {
		return "", err
	}

	return s.WriteAtomic(relPath, data)
}

// SerializeFrontmatter renders a frontmatter map and body back into the
// `---`-fenced file format. An empty map produces a file with no
// frontmatter block at all, matching the parser's tolerance for notes
// that never had one.
func SerializeFrontmatter(meta map[string]any, body []byte) ([]byte, error) {
	if len(meta) == 0 {
		return body, nil
	}

	yamlBytes, err := yaml.Marshal(sortedMap(meta))
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrCodeFrontmatterWrite,
			"failed to marshal frontmatter", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(yamlBytes)
	buf.WriteString("---\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// sortedMap returns a yaml.MapSlice-equivalent ordering so repeated writes
// of the same keys produce byte-stable output (yaml.v3 marshals map[string]any
// in the key order Go happens to iterate it, which is randomized per run).
func sortedMap(m map[string]any) yaml.Node {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	node := yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range keys {
		var keyNode, valueNode yaml.Node
		_ = keyNode.Encode(k)
		_ = valueNode.Encode(m[k])
		node.Content = append(node.Content, &keyNode, &valueNode)
	}
	return node
}
