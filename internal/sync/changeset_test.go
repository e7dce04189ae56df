package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strp(s string) *string { return &s }

func TestBuildChangeSet_NewFile_NotInExisting(t *testing.T) {
	existing := map[string]fileRecord{}
	scannedFiles := []scanned{{path: "a.md", checksum: "c1"}}

	cs := buildChangeSet(existing, scannedFiles, true)

	assert.Equal(t, []scanned{{path: "a.md", checksum: "c1"}}, cs.New)
	assert.Empty(t, cs.Modified)
	assert.Empty(t, cs.Deleted)
	assert.Empty(t, cs.Moves)
}

func TestBuildChangeSet_ModifiedFile_ChecksumDiffers(t *testing.T) {
	existing := map[string]fileRecord{
		"a.md": {entityID: 1, checksum: strp("old")},
	}
	scannedFiles := []scanned{{path: "a.md", checksum: "new"}}

	cs := buildChangeSet(existing, scannedFiles, true)

	assert.Equal(t, []scanned{{path: "a.md", checksum: "new"}}, cs.Modified)
	assert.Empty(t, cs.New)
}

func TestBuildChangeSet_UnchangedFile_NotReported(t *testing.T) {
	existing := map[string]fileRecord{
		"a.md": {entityID: 1, checksum: strp("same")},
	}
	scannedFiles := []scanned{{path: "a.md", checksum: "same"}}

	cs := buildChangeSet(existing, scannedFiles, true)

	assert.Empty(t, cs.New)
	assert.Empty(t, cs.Modified)
	assert.Empty(t, cs.Deleted)
}

func TestBuildChangeSet_PartialScan_NeverReportsDeletions(t *testing.T) {
	existing := map[string]fileRecord{
		"a.md": {entityID: 1, checksum: strp("c1")},
		"b.md": {entityID: 2, checksum: strp("c2")},
	}
	// Only a.md was touched this pass; b.md is absent from the scan but
	// fullScan is false, so it must not be classified as deleted.
	scannedFiles := []scanned{{path: "a.md", checksum: "c1"}}

	cs := buildChangeSet(existing, scannedFiles, false)

	assert.Empty(t, cs.Deleted)
	assert.Empty(t, cs.Moves)
}

func TestBuildChangeSet_FullScan_MissingPathIsDeleted(t *testing.T) {
	existing := map[string]fileRecord{
		"a.md": {entityID: 1, checksum: strp("c1")},
		"b.md": {entityID: 2, checksum: strp("c2")},
	}
	scannedFiles := []scanned{{path: "a.md", checksum: "c1"}}

	cs := buildChangeSet(existing, scannedFiles, true)

	assert.Equal(t, []string{"b.md"}, cs.Deleted)
}

func TestBuildChangeSet_MatchingChecksum_PairsAsMove(t *testing.T) {
	existing := map[string]fileRecord{
		"old/note.md": {entityID: 7, checksum: strp("same-content")},
	}
	scannedFiles := []scanned{{path: "new/note.md", checksum: "same-content"}}

	cs := buildChangeSet(existing, scannedFiles, true)

	assert.Empty(t, cs.New)
	assert.Empty(t, cs.Deleted)
	assert.Equal(t, []MovePair{{
		OldPath:  "old/note.md",
		NewPath:  "new/note.md",
		Checksum: "same-content",
		EntityID: 7,
	}}, cs.Moves)
}

func TestBuildChangeSet_UnpairedDeletion_StaysDeleted(t *testing.T) {
	existing := map[string]fileRecord{
		"gone.md": {entityID: 3, checksum: strp("unique")},
	}
	var scannedFiles []scanned

	cs := buildChangeSet(existing, scannedFiles, true)

	assert.Equal(t, []string{"gone.md"}, cs.Deleted)
	assert.Empty(t, cs.Moves)
}

func TestBuildChangeSet_UnpairedNewFile_StaysNew(t *testing.T) {
	existing := map[string]fileRecord{}
	scannedFiles := []scanned{{path: "fresh.md", checksum: "unique-new"}}

	cs := buildChangeSet(existing, scannedFiles, true)

	assert.Equal(t, []scanned{{path: "fresh.md", checksum: "unique-new"}}, cs.New)
	assert.Empty(t, cs.Moves)
}

func TestBuildChangeSet_MultipleDeletedSameChecksum_PairsGreedilyOneAtATime(t *testing.T) {
	existing := map[string]fileRecord{
		"a.md": {entityID: 1, checksum: strp("dup")},
		"b.md": {entityID: 2, checksum: strp("dup")},
	}
	scannedFiles := []scanned{{path: "c.md", checksum: "dup"}}

	cs := buildChangeSet(existing, scannedFiles, true)

	require := assert.New(t)
	require.Len(cs.Moves, 1)
	require.Len(cs.Deleted, 1)
	// One of the two same-checksum originals pairs with c.md; the other
	// remains a deletion.
	paired := cs.Moves[0].OldPath
	deleted := cs.Deleted[0]
	require.NotEqual(paired, deleted)
	require.ElementsMatch([]string{"a.md", "b.md"}, []string{paired, deleted})
}

func TestBuildChangeSet_DeletedRecordWithNilChecksum_NeverPairs(t *testing.T) {
	existing := map[string]fileRecord{
		"a.md": {entityID: 1, checksum: nil},
	}
	scannedFiles := []scanned{{path: "b.md", checksum: "anything"}}

	cs := buildChangeSet(existing, scannedFiles, true)

	assert.Equal(t, []string{"a.md"}, cs.Deleted)
	assert.Equal(t, []scanned{{path: "b.md", checksum: "anything"}}, cs.New)
	assert.Empty(t, cs.Moves)
}
