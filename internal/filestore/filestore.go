package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	coreerrors "github.com/basic-memory/bmsync/internal/errors"
)

// Store performs atomic, checksummed file operations rooted at a project
// directory. All paths passed to its methods are project-relative and
// POSIX-normalized by the caller; Store joins them against its root.
type Store struct {
	root string
}

// New returns a Store rooted at root. root should be an absolute path.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the project root this store is rooted at.
func (s *Store) Root() string {
	return s.root
}

// AbsPath resolves a project-relative path against the store's root.
func (s *Store) AbsPath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// Checksum returns the lowercase hex SHA-256 digest of data. The same
// function is used for every checksum computed by the sync engine so
// digests are always comparable.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Read returns a file's raw bytes and their checksum.
func (s *Store) Read(relPath string) ([]byte, string, error) {
	data, err := os.ReadFile(s.AbsPath(relPath))
	if err != nil {
		return nil, "", coreerrors.FileOperationError(
			fmt.Sprintf("read %s", relPath), err).WithDetail("path", relPath)
	}
	return data, Checksum(data), nil
}

// WriteAtomic writes data to relPath via a temp-file-then-rename sequence
// so readers never observe a partially written file. Returns the checksum
// of the bytes that were written.
//
// .tmp siblings are a normal, expected byproduct of a write in progress or
// one that failed before the rename; the scanner does not report them
// because they fall outside the recognized note extensions.
func (s *Store) WriteAtomic(relPath string, data []byte) (string, error) {
	absPath := s.AbsPath(relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", coreerrors.FileOperationError(
			fmt.Sprintf("create directory for %s", relPath), err).WithDetail("path", relPath)
	}

	tmpPath := absPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", coreerrors.FileOperationError(
			fmt.Sprintf("create temp file for %s", relPath), err).WithDetail("path", relPath)
	}
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", coreerrors.FileOperationError(
			fmt.Sprintf("write %s", relPath), err).WithDetail("path", relPath)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", coreerrors.FileOperationError(
			fmt.Sprintf("sync %s", relPath), err).WithDetail("path", relPath)
	}
	if err := f.Close(); err != nil {
		return "", coreerrors.FileOperationError(
			fmt.Sprintf("close %s", relPath), err).WithDetail("path", relPath)
	}

	if err := os.Rename(tmpPath, absPath); err != nil {
		return "", coreerrors.FileOperationError(
			fmt.Sprintf("rename into place %s", relPath), err).WithDetail("path", relPath)
	}

	return Checksum(data), nil
}

// Delete removes a file. Missing files are not an error: deletion is
// idempotent so callers in the sync pipeline can retry freely.
func (s *Store) Delete(relPath string) error {
	if err := os.Remove(s.AbsPath(relPath)); err != nil && !os.IsNotExist(err) {
		return coreerrors.FileOperationError(
			fmt.Sprintf("delete %s", relPath), err).WithDetail("path", relPath)
	}
	return nil
}

// Exists reports whether relPath exists and is a regular file.
func (s *Store) Exists(relPath string) bool {
	info, err := os.Stat(s.AbsPath(relPath))
	return err == nil && !info.IsDir()
}

// Stat returns os.FileInfo for relPath.
func (s *Store) Stat(relPath string) (os.FileInfo, error) {
	info, err := os.Stat(s.AbsPath(relPath))
	if err != nil {
		return nil, coreerrors.FileOperationError(
			fmt.Sprintf("stat %s", relPath), err).WithDetail("path", relPath)
	}
	return info, nil
}

// ComputeChecksum hashes a file's current on-disk bytes without returning
// them, for callers that only need to compare against a stored checksum.
func (s *Store) ComputeChecksum(relPath string) (string, error) {
	_, checksum, err := s.Read(relPath)
	return checksum, err
}
