package markdown

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/adrg/frontmatter"

	coreerrors "github.com/basic-memory/bmsync/internal/errors"
)

var (
	headerPattern      = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+?)\s*$`)
	bulletPattern      = regexp.MustCompile(`^\s*[-*]\s+(.*)$`)
	categoryPattern    = regexp.MustCompile(`^\[([^\]]*)\]\s*(.*)$`)
	tagPattern         = regexp.MustCompile(`#([A-Za-z0-9_/-]+)`)
	trailingCtxPattern = regexp.MustCompile(`\(([^()]*)\)\s*$`)
	wikiLinkPattern    = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	relationTypePrefix = regexp.MustCompile(`^([A-Za-z0-9_ -]+?)\s*\[\[`)
)

// Parse extracts frontmatter, body, observations, and relations from a
// note's raw bytes. It never fails on a malformed observation or relation
// line; it only returns an error when the frontmatter fence itself is
// unreadable.
func Parse(data []byte) (*EntityMarkdown, error) {
	meta := map[string]any{}
	body, err := frontmatter.Parse(bytes.NewReader(data), &meta)
	if err != nil {
		return nil, coreerrors.ParseError(coreerrors.ErrCodeParseFrontmatter,
			"unterminated or malformed frontmatter block", err)
	}

	bodyStr := string(body)
	sections := splitSections(bodyStr)

	entity := &EntityMarkdown{
		Frontmatter: meta,
		Body:        bodyStr,
	}

	seenTargets := map[string]bool{}

	for _, sec := range sections {
		switch normalizeHeading(sec.title) {
		case "observations":
			entity.Observations = append(entity.Observations, parseObservations(sec.content)...)
		case "relations":
			rels := parseRelations(sec.content)
			entity.Relations = append(entity.Relations, rels...)
			for _, r := range rels {
				seenTargets[strings.ToLower(r.Target)] = true
			}
		default:
			entity.Observations = append(entity.Observations, parseAdHocObservations(sec.content)...)
		}
	}

	for _, target := range extractMentions(bodyStr) {
		key := strings.ToLower(target)
		if seenTargets[key] {
			continue
		}
		seenTargets[key] = true
		entity.Relations = append(entity.Relations, Relation{
			RelationType: "mentions",
			Target:       target,
		})
	}

	return entity, nil
}

type heading struct {
	title   string
	content string
}

// splitSections walks the body line by line, grouping text under its
// nearest preceding header regardless of header depth. Only the header's
// own text is used to classify a section, matching the chunker's
// header-stack walk but flattened since nesting isn't meaningful here.
func splitSections(body string) []heading {
	lines := strings.Split(body, "\n")

	var sections []heading
	current := &heading{}
	var buf strings.Builder

	flush := func() {
		current.content = buf.String()
		sections = append(sections, *current)
		buf.Reset()
	}

	for _, line := range lines {
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = &heading{title: m[2]}
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()

	return sections
}

func normalizeHeading(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// parseObservations extracts one Observation per bullet line in a heading
// explicitly titled "observations". A bullet whose content is empty once
// its category, tags, and context are stripped away is dropped, not
// emitted as a blank observation. An absent or empty category is
// tolerated: only empty content is rejected.
func parseObservations(section string) []Observation {
	return parseObservationBullets(section, false)
}

// parseAdHocObservations extracts observations from bullets outside a
// dedicated "observations" heading. Only explicitly categorized bullets
// ("- [cat] ...") count here; a plain "- some text" bullet elsewhere in
// the body is ordinary prose, not an observation.
func parseAdHocObservations(section string) []Observation {
	return parseObservationBullets(section, true)
}

func parseObservationBullets(section string, requireCategory bool) []Observation {
	var observations []Observation

	for _, line := range strings.Split(section, "\n") {
		m := bulletPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rest := strings.TrimSpace(m[1])
		if rest == "" {
			continue
		}

		obs := Observation{}

		cm := categoryPattern.FindStringSubmatch(rest)
		if cm != nil {
			obs.Category = strings.TrimSpace(cm[1])
			rest = strings.TrimSpace(cm[2])
		} else if requireCategory {
			continue
		}

		if ctxm := trailingCtxPattern.FindStringSubmatch(rest); ctxm != nil {
			obs.Context = strings.TrimSpace(ctxm[1])
			rest = strings.TrimSpace(rest[:len(rest)-len(ctxm[0])])
		}

		for _, tm := range tagPattern.FindAllStringSubmatch(rest, -1) {
			obs.Tags = append(obs.Tags, tm[1])
		}
		rest = strings.TrimSpace(tagPattern.ReplaceAllString(rest, ""))

		if rest == "" {
			continue
		}
		if len(rest) > maxObservationContentLength {
			rest = rest[:maxObservationContentLength]
		}
		obs.Content = rest

		observations = append(observations, obs)
	}

	return observations
}

// parseRelations extracts one Relation per bullet line that contains a
// [[wiki link]]. A leading relation-type word before the link (e.g.
// "implements [[Auth Service]]") overrides the "relates_to" default.
func parseRelations(section string) []Relation {
	var relations []Relation

	for _, line := range strings.Split(section, "\n") {
		m := bulletPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rest := strings.TrimSpace(m[1])

		link := wikiLinkPattern.FindStringSubmatch(rest)
		if link == nil {
			continue
		}

		rel := Relation{
			RelationType: "relates_to",
			Target:       strings.TrimSpace(link[1]),
		}

		if tm := relationTypePrefix.FindStringSubmatch(rest); tm != nil {
			if t := strings.TrimSpace(tm[1]); t != "" {
				rel.RelationType = normalizeRelationType(t)
			}
		}

		after := rest[strings.Index(rest, link[0])+len(link[0]):]
		if ctxm := trailingCtxPattern.FindStringSubmatch(strings.TrimSpace(after)); ctxm != nil {
			rel.Context = strings.TrimSpace(ctxm[1])
		}

		relations = append(relations, rel)
	}

	return relations
}

func normalizeRelationType(raw string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
}

// extractMentions sweeps the whole body for [[wiki links]], surfacing
// implicit relations that weren't already captured as relation bullets.
func extractMentions(body string) []string {
	var mentions []string
	for _, m := range wikiLinkPattern.FindAllStringSubmatch(body, -1) {
		mentions = append(mentions, strings.TrimSpace(m[1]))
	}
	return mentions
}
