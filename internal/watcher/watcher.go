// Package watcher keeps one registered directory in sync with the store by classifying native
// filesystem events into renames, removals and content modifications.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/crawler"
	"github.com/hyperjump/gazou/internal/models"
)

// DefaultRenameWindow is how long a Rename waits for the Create that names its new location.
const DefaultRenameWindow = 300 * time.Millisecond

// RecordMover applies renames and removals to the store.
type RecordMover interface {
	Rename(ctx context.Context, from, to string) (bool, error)
	RenamePrefix(ctx context.Context, fromDir, toDir string) (int, error)
	Delete(ctx context.Context, path string) (int, error)
}

// Pipeline indexes flushed batches. ConsumeRename reports, once, whether a path was moved by the
// pipeline itself. Forget and Moved carry removals and renames to chunks still being indexed.
type Pipeline interface {
	IndexBatch(ctx context.Context, root string, paths []string, enableRename bool, progress models.ProgressFunc) models.BatchOutcome
	ConsumeRename(path string) bool
	Forget(path string)
	Moved(from, to string)
}

// Watcher follows one registered directory.
type Watcher struct {
	dir          models.RegisteredDirectory
	records      RecordMover
	pipeline     Pipeline
	renameWindow time.Duration
	ignore       []string
	onFlush      func(models.BatchOutcome)
	logger       *zap.Logger

	batch *pendingBatch

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	renaming *pendingRename
	expired  chan string
	done     chan struct{}
	ctx      context.Context
	started  bool
	stopOnce sync.Once
	flushes  sync.WaitGroup
}

// pendingRename is a Rename still waiting for its Create.
type pendingRename struct {
	path  string
	timer *time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for event classification and dispatch failures.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets the quiet period before modified files are indexed.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.batch.debounce = d
		}
	}
}

// WithRenameWindow sets how long a Rename may wait for its Create.
func WithRenameWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.renameWindow = d
		}
	}
}

// WithIgnore excludes paths beneath dirs, such as a thumbnail directory inside the root.
func WithIgnore(dirs ...string) WatcherOption {
	return func(w *Watcher) {
		for _, d := range dirs {
			if d != "" {
				w.ignore = append(w.ignore, filepath.Clean(d))
			}
		}
	}
}

// WithFlushObserver receives the outcome of every debounced batch.
func WithFlushObserver(fn func(models.BatchOutcome)) WatcherOption {
	return func(w *Watcher) { w.onFlush = fn }
}

// NewWatcher creates a watcher for dir. Nothing is watched until Start.
func NewWatcher(dir models.RegisteredDirectory, records RecordMover, pipeline Pipeline, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:          dir,
		records:      records,
		pipeline:     pipeline,
		renameWindow: DefaultRenameWindow,
		logger:       zap.NewNop(),
		expired:      make(chan string, 16),
		done:         make(chan struct{}),
		ctx:          context.Background(),
	}
	w.batch = newPendingBatch(DefaultDebounce, w.flush)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the watched root path.
func (w *Watcher) Root() string {
	return w.dir.RootPath
}

// Start subscribes to the root and every directory beneath it and processes events until ctx is
// cancelled or Stop is called. Batches already flushed keep running after that.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: create watcher: %w", models.ErrFileSystem, err)
	}
	w.watcher = fw
	if err := w.addTree(w.dir.RootPath); err != nil {
		_ = fw.Close()
		w.watcher = nil
		return fmt.Errorf("%w: watch %s: %w", models.ErrFileSystem, w.dir.RootPath, err)
	}
	w.ctx = context.WithoutCancel(ctx)
	w.started = true
	w.logger.Debug("watcher started", zap.String("root", w.dir.RootPath))
	go w.run(ctx, fw)
	return nil
}

// addTree subscribes to dir and its subdirectories. Caller holds w.mu.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case path := <-w.expired:
			w.expireRename(path)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.String("root", w.dir.RootPath), zap.Error(err))
			}
		}
	}
}

func (w *Watcher) ignored(path string) bool {
	for _, d := range w.ignore {
		if models.IsWithin(d, path) {
			return true
		}
	}
	return false
}

// handleEvent classifies one native event. Events are handled one at a time in arrival order.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !models.IsWithin(w.dir.RootPath, path) || path == w.dir.RootPath || w.ignored(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create):
		if w.selfRenamed(path) {
			return
		}
		if old, ok := w.claimRename(path); ok {
			w.applyRename(old, path)
			return
		}
		w.created(path)
	case ev.Has(fsnotify.Rename):
		if w.selfRenamed(path) {
			return
		}
		w.beginRename(path)
	case ev.Has(fsnotify.Remove):
		w.remove(path)
	case ev.Has(fsnotify.Write):
		if crawler.IsImage(path) {
			w.batch.add(path)
		}
	}
}

// selfRenamed swallows one side of a rename done by the pipeline. Removals and writes are never
// swallowed.
func (w *Watcher) selfRenamed(path string) bool {
	if !w.pipeline.ConsumeRename(path) {
		return false
	}
	w.logger.Debug("watcher ignoring self-rename", zap.String("path", path))
	return true
}

// created handles a Create that is not the second half of a rename.
func (w *Watcher) created(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		w.watchNewDirectory(path)
		w.batch.add(imagesUnder(path, w.logger)...)
		return
	}
	if crawler.IsImage(path) {
		w.batch.add(path)
	}
}

func (w *Watcher) watchNewDirectory(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", path), zap.Error(err))
	}
}

func imagesUnder(dir string, logger *zap.Logger) []string {
	var paths []string
	for f, err := range crawler.List(dir) {
		if err != nil {
			logger.Warn("watcher failed to list new directory", zap.String("path", dir), zap.Error(err))
			break
		}
		paths = append(paths, f.Path)
	}
	return paths
}

// beginRename parks path until its Create arrives. A Rename already waiting is resolved as a removal.
func (w *Watcher) beginRename(path string) {
	w.mu.Lock()
	prev := w.renaming
	w.renaming = &pendingRename{path: path}
	w.renaming.timer = time.AfterFunc(w.renameWindow, func() {
		select {
		case w.expired <- path:
		case <-w.done:
		}
	})
	w.mu.Unlock()
	if prev != nil {
		prev.timer.Stop()
		w.remove(prev.path)
	}
}

// claimRename takes the waiting Rename when newPath looks like its destination: same directory
// (renamed in place) or same name (moved). A waiting Rename that does not match is a removal.
func (w *Watcher) claimRename(newPath string) (string, bool) {
	w.mu.Lock()
	pending := w.renaming
	w.renaming = nil
	w.mu.Unlock()
	if pending == nil {
		return "", false
	}
	pending.timer.Stop()
	if filepath.Dir(pending.path) == filepath.Dir(newPath) || filepath.Base(pending.path) == filepath.Base(newPath) {
		return pending.path, true
	}
	w.remove(pending.path)
	return "", false
}

// expireRename turns a Rename whose Create never came into a removal: the file left the root.
func (w *Watcher) expireRename(path string) {
	w.mu.Lock()
	if w.renaming == nil || w.renaming.path != path {
		w.mu.Unlock()
		return
	}
	w.renaming = nil
	w.mu.Unlock()
	w.remove(path)
}

// applyRename rewrites records from oldPath to newPath straight away, without waiting for the debounce.
func (w *Watcher) applyRename(oldPath, newPath string) {
	info, err := os.Stat(newPath)
	if err != nil {
		w.remove(oldPath)
		return
	}
	w.batch.rename(oldPath, newPath)

	if info.IsDir() {
		w.watchNewDirectory(newPath)
		w.pipeline.Moved(oldPath, newPath)
		n, err := w.records.RenamePrefix(w.ctx, oldPath, newPath)
		if err != nil {
			w.logger.Error("watcher directory rename failed", zap.String("from", oldPath), zap.String("to", newPath), zap.Error(err))
			return
		}
		w.logger.Debug("watcher directory renamed", zap.String("from", oldPath), zap.String("to", newPath), zap.Int("records", n))
		return
	}

	switch {
	case !crawler.IsImage(newPath):
		w.remove(oldPath)
	case !crawler.IsImage(oldPath):
		w.batch.add(newPath)
	default:
		w.pipeline.Moved(oldPath, newPath)
		ok, err := w.records.Rename(w.ctx, oldPath, newPath)
		if err != nil {
			w.logger.Error("watcher rename failed", zap.String("from", oldPath), zap.String("to", newPath), zap.Error(err))
			return
		}
		w.logger.Debug("watcher file renamed", zap.String("from", oldPath), zap.String("to", newPath), zap.Bool("indexed", ok))
	}
}

// remove deletes records at or beneath path and forgets pending modifications there.
func (w *Watcher) remove(path string) {
	w.batch.drop(path)
	w.pipeline.Forget(path)
	n, err := w.records.Delete(w.ctx, path)
	if err != nil {
		w.logger.Error("watcher remove failed", zap.String("path", path), zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Debug("watcher records removed", zap.String("path", path), zap.Int("records", n))
	}
}

// flush hands a debounced batch to the pipeline on its own goroutine.
func (w *Watcher) flush(paths []string) {
	w.flushes.Add(1)
	go func() {
		defer w.flushes.Done()
		existing := paths[:0:0]
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				existing = append(existing, p)
			}
		}
		if len(existing) == 0 {
			return
		}
		w.logger.Debug("watcher flushing batch", zap.String("root", w.dir.RootPath), zap.Int("files", len(existing)))
		out := w.pipeline.IndexBatch(w.ctx, w.dir.RootPath, existing, w.dir.EnableRename, nil)
		if err := out.Err(); err != nil {
			w.logger.Warn("watcher batch had failures",
				zap.String("root", w.dir.RootPath),
				zap.Int("failed", out.Failed),
				zap.Int("indexed", out.Indexed),
				zap.Error(err))
		}
		if w.onFlush != nil {
			w.onFlush(out)
		}
	}()
}

// Wait blocks until every flushed batch has finished indexing.
func (w *Watcher) Wait() {
	w.flushes.Wait()
}

// Stop releases the native subscription and discards pending modifications. Batches already
// handed to the pipeline complete.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.batch.stop()
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.renaming != nil {
			w.renaming.timer.Stop()
			w.renaming = nil
		}
		if w.watcher != nil {
			if err := w.watcher.Close(); err != nil && !errors.Is(err, fsnotify.ErrClosed) {
				w.logger.Debug("watcher close", zap.Error(err))
			}
			w.watcher = nil
		}
		w.started = false
		w.logger.Debug("watcher stopped", zap.String("root", w.dir.RootPath))
	})
}
