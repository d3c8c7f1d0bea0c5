package models

import (
	"path/filepath"
	"strings"
	"time"
)

// RegisteredDirectory is a root the user asked to keep indexed.
type RegisteredDirectory struct {
	Name         string    `json:"name"`
	RootPath     string    `json:"root_path"`
	EnableRename bool      `json:"enable_rename"`
	CreatedAt    time.Time `json:"created_at"`
}

// NormalizeRoot returns the absolute, cleaned form of a root path.
func NormalizeRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// IsWithin reports whether path equals dir or lies beneath it.
// The comparison respects separator boundaries, so /a/bc is not within /a/b.
func IsWithin(dir, path string) bool {
	dir = filepath.Clean(dir)
	path = filepath.Clean(path)
	if dir == path {
		return true
	}
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// Overlaps reports whether either root contains the other.
func Overlaps(a, b string) bool {
	return IsWithin(a, b) || IsWithin(b, a)
}

// Rebase moves path from under oldDir to the same relative place under newDir.
// ok is false when path is not within oldDir.
func Rebase(path, oldDir, newDir string) (rebased string, ok bool) {
	if !IsWithin(oldDir, path) {
		return "", false
	}
	rel, err := filepath.Rel(filepath.Clean(oldDir), filepath.Clean(path))
	if err != nil {
		return "", false
	}
	return filepath.Join(newDir, rel), true
}
