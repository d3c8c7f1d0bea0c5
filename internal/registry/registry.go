// Package registry owns the set of registered directories: it persists them, keeps one watcher
// per directory alive and starts the initial indexing run when a directory is added.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/crawler"
	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/storage"
	"github.com/hyperjump/gazou/internal/watcher"
)

// Index is the part of the store the registry needs.
type Index interface {
	watcher.RecordMover
	ListByRoot(ctx context.Context, root string) ([]*models.IndexRecord, error)
	DeleteRoot(ctx context.Context, root string) (int, error)
}

// Registry manages registered directories and their watchers.
type Registry struct {
	dirs          storage.DirectoryStorage
	index         Index
	pipeline      watcher.Pipeline
	watcherOpts   []watcher.WatcherOption
	purgeOnRemove bool
	resyncOnStart bool
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

type entry struct {
	dir      models.RegisteredDirectory
	watcher  *watcher.Watcher
	watchErr error
	task     *Task
}

// DirectoryStatus describes a registered directory and its watcher.
type DirectoryStatus struct {
	models.RegisteredDirectory
	Watching   bool        `json:"watching"`
	WatchError string      `json:"watch_error,omitempty"`
	Task       *TaskStatus `json:"task,omitempty"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithWatcherOptions are applied to every watcher the registry starts.
func WithWatcherOptions(opts ...watcher.WatcherOption) Option {
	return func(r *Registry) { r.watcherOpts = append(r.watcherOpts, opts...) }
}

// WithPurgeOnRemove makes Remove delete the directory's records as well.
func WithPurgeOnRemove(purge bool) Option {
	return func(r *Registry) { r.purgeOnRemove = purge }
}

// WithResyncOnStart makes Open reconcile each directory with the store.
func WithResyncOnStart(resync bool) Option {
	return func(r *Registry) { r.resyncOnStart = resync }
}

// New creates a registry. Call Open to restore persisted directories.
func New(dirs storage.DirectoryStorage, index Index, pipeline watcher.Pipeline, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		dirs:     dirs,
		index:    index,
		pipeline: pipeline,
		logger:   zap.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open loads persisted directories and re-arms a watcher for each. With resync enabled it also
// starts a catch-up task per directory.
func (r *Registry) Open(ctx context.Context) error {
	dirs, err := r.dirs.ListDirectories(ctx)
	if err != nil {
		return fmt.Errorf("load directories: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range dirs {
		if _, ok := r.entries[d.RootPath]; ok {
			continue
		}
		e := &entry{dir: *d}
		r.entries[d.RootPath] = e
		r.startWatcherLocked(e)
		if r.resyncOnStart {
			e.task = r.launchLocked(e.dir, nil, r.resync)
		}
	}
	r.logger.Info("registry opened", zap.Int("directories", len(dirs)), zap.Bool("resync", r.resyncOnStart))
	return nil
}

// Add registers dir, starts its watcher and launches the initial crawl and index. It returns once
// the registration is persisted; the Task reports when indexing finishes.
func (r *Registry) Add(ctx context.Context, dir models.RegisteredDirectory, progress models.ProgressFunc) (*Task, error) {
	root, err := models.NormalizeRoot(dir.RootPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFileSystem, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", models.ErrFileSystem, root)
	}
	dir.RootPath = root
	if dir.Name == "" {
		dir.Name = filepath.Base(root)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("registry is closed")
	}
	for existing := range r.entries {
		if models.Overlaps(existing, root) {
			return nil, &models.OverlapError{Root: root, Existing: existing}
		}
	}
	if err := r.dirs.SaveDirectory(ctx, &dir); err != nil {
		return nil, fmt.Errorf("save directory: %w", err)
	}

	e := &entry{dir: dir}
	r.entries[root] = e
	r.startWatcherLocked(e)
	e.task = r.launchLocked(dir, progress, r.crawl)
	r.logger.Info("directory added", zap.String("root", root), zap.Bool("rename", dir.EnableRename))
	return e.task, nil
}

// Remove stops the directory's watcher and deletes its registration. Indexing already in
// flight completes. Records are only deleted when purge on remove is enabled.
func (r *Registry) Remove(ctx context.Context, rootPath string) error {
	root, err := models.NormalizeRoot(rootPath)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[root]
	if !ok {
		return fmt.Errorf("directory %s: %w", root, models.ErrNotFound)
	}
	if e.watcher != nil {
		e.watcher.Stop()
	}
	if err := r.dirs.DeleteDirectory(ctx, root); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("delete directory: %w", err)
	}
	delete(r.entries, root)

	if r.purgeOnRemove {
		n, err := r.index.DeleteRoot(ctx, root)
		if err != nil {
			return fmt.Errorf("purge records: %w", err)
		}
		r.logger.Info("directory records purged", zap.String("root", root), zap.Int("records", n))
	}
	r.logger.Info("directory removed", zap.String("root", root))
	return nil
}

// List returns the registered directories in insertion order.
func (r *Registry) List(ctx context.Context) ([]models.RegisteredDirectory, error) {
	dirs, err := r.dirs.ListDirectories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list directories: %w", err)
	}
	out := make([]models.RegisteredDirectory, len(dirs))
	for i, d := range dirs {
		out[i] = *d
	}
	return out, nil
}

// Statuses returns every directory with its watcher state and latest task, in insertion order.
func (r *Registry) Statuses(ctx context.Context) ([]DirectoryStatus, error) {
	dirs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DirectoryStatus, 0, len(dirs))
	for _, d := range dirs {
		st := DirectoryStatus{RegisteredDirectory: d}
		if e, ok := r.entries[d.RootPath]; ok {
			st.Watching = e.watcher != nil
			if e.watchErr != nil {
				st.WatchError = e.watchErr.Error()
			}
			if e.task != nil {
				ts := e.task.Status()
				st.Task = &ts
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// Task returns the latest indexing task for a directory, or nil.
func (r *Registry) Task(rootPath string) (*Task, error) {
	root, err := models.NormalizeRoot(rootPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[root]
	if !ok {
		return nil, fmt.Errorf("directory %s: %w", root, models.ErrNotFound)
	}
	return e.task, nil
}

// Wait blocks until every launched task has finished.
func (r *Registry) Wait() {
	r.tasks.Wait()
}

// Close stops every watcher, stops running tasks before their next chunk and waits for them.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var stopped []*watcher.Watcher
	for _, e := range r.entries {
		if e.watcher != nil {
			e.watcher.Stop()
			stopped = append(stopped, e.watcher)
		}
	}
	r.mu.Unlock()
	r.cancel()
	r.tasks.Wait()
	for _, w := range stopped {
		w.Wait()
	}
	return nil
}

// startWatcherLocked starts e's watcher. A failure leaves the directory registered but unwatched.
func (r *Registry) startWatcherLocked(e *entry) {
	w := watcher.NewWatcher(e.dir, r.index, r.pipeline, append([]watcher.WatcherOption{watcher.WithLogger(r.logger)}, r.watcherOpts...)...)
	if err := w.Start(r.ctx); err != nil {
		e.watchErr = err
		r.logger.Error("directory watcher failed to start; changes will not be tracked",
			zap.String("root", e.dir.RootPath),
			zap.Error(err))
		return
	}
	e.watcher = w
	e.watchErr = nil
}

type runner func(ctx context.Context, task *Task, dir models.RegisteredDirectory, progress models.ProgressFunc) models.BatchOutcome

func (r *Registry) launchLocked(dir models.RegisteredDirectory, progress models.ProgressFunc, run runner) *Task {
	task := newTask(dir.RootPath)
	report := func(p models.Progress) {
		task.report(p)
		if progress != nil {
			progress(p)
		}
	}
	r.tasks.Add(1)
	go func() {
		defer r.tasks.Done()
		out := run(r.ctx, task, dir, report)
		task.finish(out)
		r.logger.Info("directory indexing finished",
			zap.String("root", dir.RootPath),
			zap.Int("total", out.Total),
			zap.Int("indexed", out.Indexed),
			zap.Int("failed", out.Failed))
	}()
	return task
}

// crawl indexes every image under the directory.
func (r *Registry) crawl(ctx context.Context, task *Task, dir models.RegisteredDirectory, progress models.ProgressFunc) models.BatchOutcome {
	paths, crawlErr := r.discover(dir.RootPath)
	task.report(models.Progress{Total: len(paths)})
	out := r.pipeline.IndexBatch(ctx, dir.RootPath, paths, dir.EnableRename, progress)
	if crawlErr != nil {
		out.Errors = append(out.Errors, crawlErr)
	}
	return out
}

// resync indexes images missing from the store and deletes records whose files are gone.
func (r *Registry) resync(ctx context.Context, task *Task, dir models.RegisteredDirectory, progress models.ProgressFunc) models.BatchOutcome {
	paths, crawlErr := r.discover(dir.RootPath)
	records, err := r.index.ListByRoot(ctx, dir.RootPath)
	if err != nil {
		return models.BatchOutcome{Errors: []error{fmt.Errorf("list records: %w", err)}}
	}
	indexed := make(map[string]bool, len(records))
	for _, rec := range records {
		indexed[rec.Path] = true
	}
	var missing []string
	for _, p := range paths {
		if !indexed[p] {
			missing = append(missing, p)
		}
	}
	pruned := 0
	if crawlErr == nil {
		for _, rec := range records {
			if _, err := os.Stat(rec.Path); errors.Is(err, os.ErrNotExist) {
				if _, err := r.index.Delete(ctx, rec.Path); err != nil {
					r.logger.Warn("resync delete failed", zap.String("path", rec.Path), zap.Error(err))
					continue
				}
				pruned++
			}
		}
	}
	r.logger.Info("directory resync",
		zap.String("root", dir.RootPath),
		zap.Int("missing", len(missing)),
		zap.Int("pruned", pruned))

	task.report(models.Progress{Total: len(missing)})
	out := r.pipeline.IndexBatch(ctx, dir.RootPath, missing, dir.EnableRename, progress)
	if crawlErr != nil {
		out.Errors = append(out.Errors, crawlErr)
	}
	return out
}

// discover lists images under root. Files found before a walk error are still returned.
func (r *Registry) discover(root string) ([]string, error) {
	var paths []string
	for f, err := range crawler.List(root) {
		if err != nil {
			r.logger.Warn("crawl failed", zap.String("root", root), zap.Error(err))
			return paths, err
		}
		paths = append(paths, f.Path)
	}
	return paths, nil
}
