package docstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arisezione/librosoci/internal/apperr"
)

// Archive copies sourcePath into targetDir under a fresh token name and
// returns the absolute destination path plus the stored name. It is the
// sole entry path for documents into managed storage. The source must be
// an existing regular file. Identical content always produces a new
// physical file and token; there is no content dedup.
func (s *Store) Archive(sourcePath, targetDir string) (string, string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", "", fmt.Errorf("docstore: source %s: %w", sourcePath, apperr.ErrNotFound)
	}
	if !info.Mode().IsRegular() {
		return "", "", fmt.Errorf("docstore: source %s is not a regular file: %w", sourcePath, apperr.ErrNotFound)
	}

	storedName, err := s.UniqueName(targetDir, filepath.Ext(sourcePath))
	if err != nil {
		return "", "", err
	}
	dest := filepath.Join(targetDir, storedName)
	if err := copyFile(sourcePath, dest); err != nil {
		return "", "", fmt.Errorf("docstore: archive copy: %w", err)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", "", fmt.Errorf("docstore: resolve destination: %w", err)
	}
	return abs, storedName, nil
}

// copyFile copies src to dst, preserving mode and modification time.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
