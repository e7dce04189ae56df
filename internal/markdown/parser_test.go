package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	content := []byte("---\ntitle: Auth Service\ntype: note\n---\n\n# Auth Service\n\nHandles login.\n")

	entity, err := Parse(content)

	require.NoError(t, err)
	assert.Equal(t, "Auth Service", entity.FrontmatterString("title"))
	assert.Contains(t, entity.Body, "Handles login.")
}

func TestParse_NoFrontmatter_IsLegal(t *testing.T) {
	entity, err := Parse([]byte("# Plain note\n\nNo frontmatter here.\n"))

	require.NoError(t, err)
	assert.Empty(t, entity.Frontmatter)
	assert.Contains(t, entity.Body, "Plain note")
}

func TestParse_UnterminatedFrontmatter_ReturnsParseError(t *testing.T) {
	_, err := Parse([]byte("---\ntitle: x\n\n# No closing fence\n"))

	require.Error(t, err)
}

func TestParse_Observations_CategoryTagsAndContext(t *testing.T) {
	content := []byte(`## Observations
- [design] Uses JWT tokens #security #auth (decided after review)
- [tech] Stores sessions in Redis
- No category here, just content #fact
`)

	entity, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, entity.Observations, 3)

	first := entity.Observations[0]
	assert.Equal(t, "design", first.Category)
	assert.Equal(t, "Uses JWT tokens", first.Content)
	assert.ElementsMatch(t, []string{"security", "auth"}, first.Tags)
	assert.Equal(t, "decided after review", first.Context)

	second := entity.Observations[1]
	assert.Equal(t, "tech", second.Category)
	assert.Equal(t, "Stores sessions in Redis", second.Content)
	assert.Empty(t, second.Tags)

	third := entity.Observations[2]
	assert.Empty(t, third.Category)
	assert.Equal(t, "No category here, just content", third.Content)
	assert.ElementsMatch(t, []string{"fact"}, third.Tags)
}

func TestParse_Observations_EmptyContentAfterStripping_IsDropped(t *testing.T) {
	content := []byte(`## Observations
- [design]
-
`)

	entity, err := Parse(content)
	require.NoError(t, err)
	assert.Empty(t, entity.Observations)
}

func TestParse_Observations_TruncatesLongContent(t *testing.T) {
	long := ""
	for i := 0; i < 1100; i++ {
		long += "a"
	}
	content := []byte("## Observations\n- " + long + "\n")

	entity, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, entity.Observations, 1)
	assert.Len(t, entity.Observations[0].Content, maxObservationContentLength)
}

func TestParse_Relations_TypeAndContext(t *testing.T) {
	content := []byte(`## Relations
- implements [[Auth Service]]
- [[Session Store]] (fallback cache)
- relates_to [[Config Loader]]
`)

	entity, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, entity.Relations, 3)

	assert.Equal(t, "implements", entity.Relations[0].RelationType)
	assert.Equal(t, "Auth Service", entity.Relations[0].Target)

	assert.Equal(t, "relates_to", entity.Relations[1].RelationType)
	assert.Equal(t, "Session Store", entity.Relations[1].Target)
	assert.Equal(t, "fallback cache", entity.Relations[1].Context)

	assert.Equal(t, "relates_to", entity.Relations[2].RelationType)
	assert.Equal(t, "Config Loader", entity.Relations[2].Target)
}

func TestParse_MentionsOutsideRelationsSection_BecomeImplicitRelations(t *testing.T) {
	content := []byte(`# Note

See [[Auth Service]] for details.

## Relations
- depends_on [[Config Loader]]
`)

	entity, err := Parse(content)
	require.NoError(t, err)

	var targets []string
	for _, r := range entity.Relations {
		targets = append(targets, r.Target)
	}
	assert.Contains(t, targets, "Auth Service")
	assert.Contains(t, targets, "Config Loader")
	assert.Len(t, targets, 2)
}

func TestParse_MentionsDedupedAgainstRelationBullets(t *testing.T) {
	content := []byte(`## Relations
- implements [[Auth Service]]

Mentioned again: [[Auth Service]]
`)

	entity, err := Parse(content)
	require.NoError(t, err)
	assert.Len(t, entity.Relations, 1)
	assert.Equal(t, "implements", entity.Relations[0].RelationType)
}

func TestParse_Tags_FromFrontmatterList(t *testing.T) {
	content := []byte("---\ntags:\n  - go\n  - backend\n---\n\nBody\n")

	entity, err := Parse(content)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"go", "backend"}, entity.Tags())
}

func TestParse_Tags_FromCommaSeparatedString(t *testing.T) {
	content := []byte("---\ntags: go, backend\n---\n\nBody\n")

	entity, err := Parse(content)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"go", "backend"}, entity.Tags())
}
