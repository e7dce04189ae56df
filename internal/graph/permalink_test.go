package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePermalink_LowercasesAndCollapsesSeparators(t *testing.T) {
	assert.Equal(t, "notes/hello-world", DerivePermalink("Notes/Hello_World.md"))
}

func TestDerivePermalink_PreservesDirectoryStructure(t *testing.T) {
	assert.Equal(t, "x/note", DerivePermalink("x/note.md"))
	assert.Equal(t, "y/note", DerivePermalink("y/note.md"))
}

func TestDerivePermalink_CollapsesDotsAndSpaces(t *testing.T) {
	assert.Equal(t, "my-design-doc-v2", DerivePermalink("My Design.Doc v2.md"))
}

func TestNextCollisionSuffix_NoCollision(t *testing.T) {
	got := NextCollisionSuffix("x/note", func(string) bool { return false })
	assert.Equal(t, "x/note", got)
}

func TestNextCollisionSuffix_AppendsIncrementingSuffix(t *testing.T) {
	taken := map[string]bool{"x/note": true, "x/note-1": true}
	got := NextCollisionSuffix("x/note", func(c string) bool { return taken[c] })
	assert.Equal(t, "x/note-2", got)
}
