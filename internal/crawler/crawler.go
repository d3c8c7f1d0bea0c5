// Package crawler lists eligible image files beneath a directory.
package crawler

import (
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"strings"

	"github.com/hyperjump/gazou/internal/models"
)

// Extensions are the image suffixes the crawler yields. Matching is case-sensitive.
var Extensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// IsImage reports whether name ends with one of Extensions.
func IsImage(name string) bool {
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// List walks root depth-first and yields every regular image file once.
// Directories are descended into but never yielded. Breaking out of the range stops the walk.
// A walk error is yielded once with a zero DiscoveredFile and ends the sequence.
func List(root string) iter.Seq2[models.DiscoveredFile, error] {
	return func(yield func(models.DiscoveredFile, error) bool) {
		root = filepath.Clean(root)
		stopped := false
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() || !IsImage(d.Name()) {
				return nil
			}
			file := models.DiscoveredFile{RootPath: root, Path: path, FileName: d.Name()}
			if !yield(file, nil) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield(models.DiscoveredFile{}, fmt.Errorf("walk %s: %w: %w", root, models.ErrFileSystem, err))
		}
	}
}

// Collect drains List into a slice.
func Collect(root string) ([]models.DiscoveredFile, error) {
	var files []models.DiscoveredFile
	for file, err := range List(root) {
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}
	return files, nil
}

// Paths returns the Path of every file.
func Paths(files []models.DiscoveredFile) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}
