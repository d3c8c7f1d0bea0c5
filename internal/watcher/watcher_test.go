package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/gazou/internal/models"
)

type call struct {
	op       string
	from, to string
}

type fakeRecords struct {
	mu    sync.Mutex
	known map[string]bool
	calls []call
}

func newFakeRecords(paths ...string) *fakeRecords {
	f := &fakeRecords{known: make(map[string]bool)}
	for _, p := range paths {
		f.known[p] = true
	}
	return f
}

func (f *fakeRecords) Rename(ctx context.Context, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"rename", from, to})
	if !f.known[from] {
		return false, nil
	}
	delete(f.known, from)
	f.known[to] = true
	return true, nil
}

func (f *fakeRecords) RenamePrefix(ctx context.Context, fromDir, toDir string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"rename_prefix", fromDir, toDir})
	n := 0
	for p := range f.known {
		if moved, ok := models.Rebase(p, fromDir, toDir); ok {
			delete(f.known, p)
			f.known[moved] = true
			n++
		}
	}
	return n, nil
}

func (f *fakeRecords) Delete(ctx context.Context, path string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"delete", path, ""})
	n := 0
	for p := range f.known {
		if models.IsWithin(path, p) {
			delete(f.known, p)
			n++
		}
	}
	return n, nil
}

func (f *fakeRecords) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeRecords) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.known[path]
}

type fakePipeline struct {
	mu      sync.Mutex
	batches [][]string
	renames map[string]bool
	rename  []bool
	forgot  []string
	moved   [][2]string
}

func (p *fakePipeline) IndexBatch(ctx context.Context, root string, paths []string, enableRename bool, progress models.ProgressFunc) models.BatchOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	p.batches = append(p.batches, sorted)
	p.rename = append(p.rename, enableRename)
	return models.BatchOutcome{Total: len(paths), Indexed: len(paths)}
}

func (p *fakePipeline) ConsumeRename(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.renames[path] {
		return false
	}
	delete(p.renames, path)
	return true
}

func (p *fakePipeline) Forget(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forgot = append(p.forgot, path)
}

func (p *fakePipeline) Moved(from, to string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moved = append(p.moved, [2]string{from, to})
}

func (p *fakePipeline) flushed() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.batches...)
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(path), 0644))
}

func newTestWatcher(t *testing.T, records *fakeRecords, opts ...WatcherOption) (*Watcher, *fakePipeline, string) {
	t.Helper()
	root := t.TempDir()
	p := &fakePipeline{renames: make(map[string]bool)}
	dir := models.RegisteredDirectory{Name: "photos", RootPath: root, EnableRename: true}
	opts = append([]WatcherOption{WithDebounce(50 * time.Millisecond), WithRenameWindow(30 * time.Millisecond)}, opts...)
	w := NewWatcher(dir, records, p, opts...)
	t.Cleanup(w.Stop)
	return w, p, root
}

func ev(op fsnotify.Op, path string) fsnotify.Event {
	return fsnotify.Event{Name: path, Op: op}
}

func TestWatcher_ModifyBurstIsDebouncedIntoOneBatch(t *testing.T) {
	w, p, root := newTestWatcher(t, newFakeRecords())
	a, b := filepath.Join(root, "a.jpg"), filepath.Join(root, "b.png")
	touch(t, a)
	touch(t, b)

	w.handleEvent(ev(fsnotify.Create, a))
	w.handleEvent(ev(fsnotify.Write, a))
	w.handleEvent(ev(fsnotify.Write, b))
	w.handleEvent(ev(fsnotify.Write, a))

	state, pending := w.batch.snapshot()
	assert.Equal(t, stateAccumulating, state)
	assert.Equal(t, []string{a, b}, pending)
	assert.Empty(t, p.flushed(), "nothing runs before the debounce expires")

	require.Eventually(t, func() bool { return len(p.flushed()) == 1 }, 2*time.Second, 10*time.Millisecond)
	w.Wait()
	assert.Equal(t, []string{a, b}, p.flushed()[0])
	assert.True(t, p.rename[0], "directory rename flag is passed through")

	state, pending = w.batch.snapshot()
	assert.Equal(t, stateIdle, state)
	assert.Empty(t, pending)
}

func TestWatcher_DebounceRestartsOnEachEvent(t *testing.T) {
	w, p, root := newTestWatcher(t, newFakeRecords(), WithDebounce(200*time.Millisecond))
	a := filepath.Join(root, "a.jpg")
	touch(t, a)

	for i := 0; i < 4; i++ {
		w.handleEvent(ev(fsnotify.Write, a))
		time.Sleep(30 * time.Millisecond)
	}
	assert.Empty(t, p.flushed(), "events closer than the debounce keep the batch open")
	require.Eventually(t, func() bool { return len(p.flushed()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresNonImagesAndChmod(t *testing.T) {
	w, _, root := newTestWatcher(t, newFakeRecords())
	txt := filepath.Join(root, "notes.txt")
	upper := filepath.Join(root, "PHOTO.JPG")
	img := filepath.Join(root, "a.jpg")
	touch(t, txt)
	touch(t, upper)
	touch(t, img)

	w.handleEvent(ev(fsnotify.Create, txt))
	w.handleEvent(ev(fsnotify.Create, upper))
	w.handleEvent(ev(fsnotify.Chmod, img))
	w.handleEvent(ev(fsnotify.Write, filepath.Join(t.TempDir(), "outside.jpg")))

	state, pending := w.batch.snapshot()
	assert.Equal(t, stateIdle, state)
	assert.Empty(t, pending)
}

func TestWatcher_RenameIsImmediateAndMigratesPending(t *testing.T) {
	records := newFakeRecords()
	w, p, root := newTestWatcher(t, records, WithDebounce(time.Hour))
	old, renamed := filepath.Join(root, "old.jpg"), filepath.Join(root, "new.jpg")
	other := filepath.Join(root, "other.jpg")
	records.known[old] = true
	touch(t, other)
	touch(t, renamed)

	w.handleEvent(ev(fsnotify.Write, other))
	w.handleEvent(ev(fsnotify.Write, old))
	w.handleEvent(ev(fsnotify.Rename, old))
	w.handleEvent(ev(fsnotify.Create, renamed))

	assert.True(t, records.has(renamed), "rename applied while the batch is still open")
	assert.False(t, records.has(old))
	assert.Equal(t, []call{{"rename", old, renamed}}, records.snapshot())

	state, pending := w.batch.snapshot()
	assert.Equal(t, stateAccumulating, state)
	assert.Equal(t, []string{renamed, other}, pending)
	assert.Empty(t, p.flushed())
}

func TestWatcher_RenameOfUnindexedFileIsNoop(t *testing.T) {
	records := newFakeRecords()
	w, _, root := newTestWatcher(t, records)
	old, renamed := filepath.Join(root, "a.jpg"), filepath.Join(root, "b.jpg")
	touch(t, renamed)

	w.handleEvent(ev(fsnotify.Rename, old))
	w.handleEvent(ev(fsnotify.Create, renamed))

	assert.Equal(t, []call{{"rename", old, renamed}}, records.snapshot())
	assert.False(t, records.has(renamed))
}

func TestWatcher_DirectoryRename(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "trip")
	newDir := filepath.Join(root, "trip-2024")
	records := newFakeRecords(filepath.Join(oldDir, "a.jpg"), filepath.Join(oldDir, "sub", "b.jpg"))
	p := &fakePipeline{renames: map[string]bool{}}
	w := NewWatcher(models.RegisteredDirectory{RootPath: root}, records, p, WithRenameWindow(30*time.Millisecond))
	t.Cleanup(w.Stop)
	require.NoError(t, os.MkdirAll(filepath.Join(newDir, "sub"), 0755))

	w.handleEvent(ev(fsnotify.Rename, oldDir))
	w.handleEvent(ev(fsnotify.Create, newDir))

	assert.Equal(t, []call{{"rename_prefix", oldDir, newDir}}, records.snapshot())
	assert.True(t, records.has(filepath.Join(newDir, "a.jpg")))
	assert.True(t, records.has(filepath.Join(newDir, "sub", "b.jpg")))
}

func TestWatcher_UnpairedRenameBecomesRemove(t *testing.T) {
	records := newFakeRecords()
	w, _, root := newTestWatcher(t, records)
	gone := filepath.Join(root, "moved-out.jpg")
	records.known[gone] = true

	w.handleEvent(ev(fsnotify.Rename, gone))
	assert.True(t, records.has(gone), "waits for the rename window")

	select {
	case path := <-w.expired:
		w.expireRename(path)
	case <-time.After(time.Second):
		t.Fatal("rename window never expired")
	}
	assert.False(t, records.has(gone))
	assert.Equal(t, []call{{"delete", gone, ""}}, records.snapshot())
}

func TestWatcher_UnrelatedCreateDoesNotPairWithRename(t *testing.T) {
	records := newFakeRecords()
	w, _, root := newTestWatcher(t, records, WithDebounce(time.Hour))
	gone := filepath.Join(root, "a", "x.jpg")
	fresh := filepath.Join(root, "b", "y.jpg")
	records.known[gone] = true
	touch(t, fresh)

	w.handleEvent(ev(fsnotify.Rename, gone))
	w.handleEvent(ev(fsnotify.Create, fresh))

	assert.Equal(t, []call{{"delete", gone, ""}}, records.snapshot())
	_, pending := w.batch.snapshot()
	assert.Equal(t, []string{fresh}, pending)
}

func TestWatcher_RemoveDropsPendingAndDeletes(t *testing.T) {
	records := newFakeRecords()
	w, p, root := newTestWatcher(t, records)
	a := filepath.Join(root, "a.jpg")
	touch(t, a)
	records.known[a] = true

	w.handleEvent(ev(fsnotify.Write, a))
	w.handleEvent(ev(fsnotify.Remove, a))

	assert.False(t, records.has(a))
	state, pending := w.batch.snapshot()
	assert.Equal(t, stateIdle, state)
	assert.Empty(t, pending)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, p.flushed())
}

func TestWatcher_RemoveAbsentIsNoop(t *testing.T) {
	records := newFakeRecords()
	w, _, root := newTestWatcher(t, records)
	w.handleEvent(ev(fsnotify.Remove, filepath.Join(root, "never.jpg")))
	assert.Len(t, records.snapshot(), 1)
}

func TestWatcher_NewDirectoryQueuesItsImages(t *testing.T) {
	w, _, root := newTestWatcher(t, newFakeRecords(), WithDebounce(time.Hour))
	dir := filepath.Join(root, "import")
	touch(t, filepath.Join(dir, "1.jpg"))
	touch(t, filepath.Join(dir, "deep", "2.webp"))
	touch(t, filepath.Join(dir, "readme.md"))

	w.handleEvent(ev(fsnotify.Create, dir))

	_, pending := w.batch.snapshot()
	assert.Equal(t, []string{filepath.Join(dir, "1.jpg"), filepath.Join(dir, "deep", "2.webp")}, pending)
}

func TestWatcher_SelfRenamesAreIgnored(t *testing.T) {
	records := newFakeRecords()
	w, p, root := newTestWatcher(t, records)
	old, renamed := filepath.Join(root, "img.jpg"), filepath.Join(root, "cat.jpg")
	touch(t, renamed)
	p.renames[old] = true
	p.renames[renamed] = true

	w.handleEvent(ev(fsnotify.Rename, old))
	w.handleEvent(ev(fsnotify.Create, renamed))

	assert.Empty(t, records.snapshot())
	_, pending := w.batch.snapshot()
	assert.Empty(t, pending)
	assert.Empty(t, p.renames, "each side is suppressed once")
}

func TestWatcher_RemoveAfterSelfRenameDeletes(t *testing.T) {
	records := newFakeRecords()
	w, p, root := newTestWatcher(t, records)
	old, renamed := filepath.Join(root, "img.jpg"), filepath.Join(root, "cat.jpg")
	touch(t, renamed)
	p.renames[old] = true
	p.renames[renamed] = true

	w.handleEvent(ev(fsnotify.Rename, old))
	w.handleEvent(ev(fsnotify.Create, renamed))
	records.known[renamed] = true
	require.NoError(t, os.Remove(renamed))
	w.handleEvent(ev(fsnotify.Remove, renamed))

	assert.False(t, records.has(renamed))
	assert.Equal(t, []call{{"delete", renamed, ""}}, records.snapshot())
}

func TestWatcher_RemoveIsNeverSuppressed(t *testing.T) {
	records := newFakeRecords()
	w, p, root := newTestWatcher(t, records)
	cat := filepath.Join(root, "cat.jpg")
	records.known[cat] = true
	p.renames[cat] = true

	w.handleEvent(ev(fsnotify.Remove, cat))

	assert.False(t, records.has(cat))
	assert.Equal(t, []call{{"delete", cat, ""}}, records.snapshot())
	assert.Equal(t, []string{cat}, p.forgot)
}

func TestWatcher_WriteAfterSelfRenameIsQueued(t *testing.T) {
	w, p, root := newTestWatcher(t, newFakeRecords(), WithDebounce(time.Hour))
	cat := filepath.Join(root, "cat.jpg")
	touch(t, cat)
	p.renames[cat] = true

	w.handleEvent(ev(fsnotify.Write, cat))

	_, pending := w.batch.snapshot()
	assert.Equal(t, []string{cat}, pending)
}

func TestWatcher_RenameRedirectsInFlightPaths(t *testing.T) {
	records := newFakeRecords()
	w, p, root := newTestWatcher(t, records)
	old, renamed := filepath.Join(root, "a.jpg"), filepath.Join(root, "b.jpg")
	touch(t, renamed)

	w.handleEvent(ev(fsnotify.Rename, old))
	w.handleEvent(ev(fsnotify.Create, renamed))

	assert.Equal(t, [][2]string{{old, renamed}}, p.moved)
	assert.Empty(t, p.forgot)
}

func TestWatcher_IgnoredDirectory(t *testing.T) {
	root := t.TempDir()
	thumbs := filepath.Join(root, ".thumbnails")
	p := &fakePipeline{renames: map[string]bool{}}
	w := NewWatcher(models.RegisteredDirectory{RootPath: root}, newFakeRecords(), p, WithIgnore(thumbs))
	t.Cleanup(w.Stop)
	thumb := filepath.Join(thumbs, "x.jpg")
	touch(t, thumb)

	w.handleEvent(ev(fsnotify.Create, thumb))
	_, pending := w.batch.snapshot()
	assert.Empty(t, pending)
}

func TestWatcher_StopDiscardsPending(t *testing.T) {
	w, p, root := newTestWatcher(t, newFakeRecords())
	a := filepath.Join(root, "a.jpg")
	touch(t, a)
	w.handleEvent(ev(fsnotify.Write, a))
	w.Stop()
	w.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, p.flushed())
}

func TestWatcher_StartFailsForMissingRoot(t *testing.T) {
	p := &fakePipeline{renames: map[string]bool{}}
	w := NewWatcher(models.RegisteredDirectory{RootPath: filepath.Join(t.TempDir(), "missing")}, newFakeRecords(), p)
	err := w.Start(context.Background())
	assert.ErrorIs(t, err, models.ErrFileSystem)
}

func TestWatcher_NativeEvents(t *testing.T) {
	records := newFakeRecords()
	w, p, root := newTestWatcher(t, records)
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	img := filepath.Join(sub, "photo.jpg")
	touch(t, img)
	require.Eventually(t, func() bool {
		for _, b := range p.flushed() {
			for _, path := range b {
				if path == img {
					return true
				}
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	records.mu.Lock()
	records.known[img] = true
	records.mu.Unlock()
	renamed := filepath.Join(sub, "renamed.jpg")
	require.NoError(t, os.Rename(img, renamed))
	require.Eventually(t, func() bool { return records.has(renamed) }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(renamed))
	require.Eventually(t, func() bool { return !records.has(renamed) }, 3*time.Second, 20*time.Millisecond)
}
