package sync

// MovePair is a (deleted, new) classification pair greedily matched by
// checksum: the file at OldPath disappeared and an identical-content file
// appeared at NewPath in the same scan.
type MovePair struct {
	OldPath  string
	NewPath  string
	Checksum string
	EntityID int64
}

// ChangeSet is the classified result of comparing a scan against the
// entity repository's known file paths.
type ChangeSet struct {
	New      []scanned
	Modified []scanned
	Deleted  []string
	Moves    []MovePair
}

// buildChangeSet classifies scannedFiles against existing, the project's
// known (file_path -> permalink/checksum) state. fullScan must be true for
// Deleted/Moves to be populated — a watermark-limited scan cannot prove a
// missing path was actually deleted rather than merely unchanged and
// skipped.
func buildChangeSet(existing map[string]fileRecord, scannedFiles []scanned, fullScan bool) *ChangeSet {
	cs := &ChangeSet{}
	seen := make(map[string]bool, len(scannedFiles))
	var newCandidates []scanned

	for _, f := range scannedFiles {
		seen[f.path] = true
		rec, ok := existing[f.path]
		switch {
		case !ok:
			newCandidates = append(newCandidates, f)
		case rec.checksum == nil || *rec.checksum != f.checksum:
			cs.Modified = append(cs.Modified, f)
		}
	}

	var deletedCandidates []string
	if fullScan {
		for path := range existing {
			if !seen[path] {
				deletedCandidates = append(deletedCandidates, path)
			}
		}
	}

	byChecksum := make(map[string][]string, len(deletedCandidates))
	for _, path := range deletedCandidates {
		rec := existing[path]
		if rec.checksum == nil {
			continue
		}
		byChecksum[*rec.checksum] = append(byChecksum[*rec.checksum], path)
	}

	paired := make(map[string]bool, len(deletedCandidates))
	for _, f := range newCandidates {
		paths := byChecksum[f.checksum]
		if len(paths) == 0 {
			cs.New = append(cs.New, f)
			continue
		}
		oldPath := paths[0]
		byChecksum[f.checksum] = paths[1:]
		paired[oldPath] = true
		cs.Moves = append(cs.Moves, MovePair{
			OldPath:  oldPath,
			NewPath:  f.path,
			Checksum: f.checksum,
			EntityID: existing[oldPath].entityID,
		})
	}

	for _, path := range deletedCandidates {
		if !paired[path] {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	return cs
}
