// Package storage keeps generated export files on local disk and issues
// signed tokens that gate their download.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalStorage writes and reads files relative to a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", baseDir, err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes data under the given relative path, creating intermediate
// directories, and returns the relative path back for token generation.
func (s *LocalStorage) Save(relPath string, data []byte) (string, error) {
	full := s.Path(relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("prepare directory for %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", relPath, err)
	}
	return relPath, nil
}

// Open returns a read handle for a stored file.
func (s *LocalStorage) Open(relPath string) (*os.File, error) {
	f, err := os.Open(s.Path(relPath))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", relPath, err)
	}
	return f, nil
}

// Path resolves a stored path to its absolute location on disk.
func (s *LocalStorage) Path(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(s.baseDir, relPath)
}
