package crawler

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/gazou/internal/models"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestList_YieldsImagesRecursively(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"))
	writeFile(t, filepath.Join(root, "sub", "b.png"))
	writeFile(t, filepath.Join(root, "sub", "deep", "c.webp"))
	writeFile(t, filepath.Join(root, "sub", "d.jpeg"))
	writeFile(t, filepath.Join(root, "notes.txt"))
	writeFile(t, filepath.Join(root, "UPPER.JPG"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir.png"), 0755))

	files, err := Collect(root)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		assert.Equal(t, root, f.RootPath)
		assert.Equal(t, filepath.Base(f.Path), f.FileName)
		names = append(names, f.FileName)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a.jpg", "b.png", "c.webp", "d.jpeg"}, names)
}

func TestList_EarlyStop(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"1.png", "2.png", "3.png"} {
		writeFile(t, filepath.Join(root, n))
	}
	count := 0
	for _, err := range List(root) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestList_MissingRoot(t *testing.T) {
	_, err := Collect(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrFileSystem))
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("x.jpg"))
	assert.True(t, IsImage("/a/b/x.webp"))
	assert.False(t, IsImage("x.JPG"))
	assert.False(t, IsImage("x.gif"))
}
