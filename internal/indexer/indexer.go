// Package indexer turns lists of image paths into store records: thumbnails, one gateway call
// per chunk, optional rename to the suggested name, then one batched upsert.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/gazou/internal/embedding"
	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/thumbnail"
)

const (
	// DefaultRenameTTL is how long a path renamed by the pipeline stays marked as self-renamed.
	DefaultRenameTTL = 10 * time.Second
	renameCacheSize  = 4096
	maxRenameSuffix  = 10000
)

// RecordWriter is the part of the store the pipeline writes to.
type RecordWriter interface {
	UpsertBatch(ctx context.Context, records []*models.IndexRecord) error
}

// Indexer runs the indexing pipeline.
type Indexer struct {
	thumbs    thumbnail.Thumbnailer
	gateway   embedding.Gateway
	records   RecordWriter
	chunkSize int
	renamed   *expirable.LRU[string, struct{}]
	renameMu  sync.Mutex
	inFlight  map[*flight]struct{}
	flightMu  sync.Mutex
	logger    *zap.Logger
	now       func() time.Time
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for chunk results and failures.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithChunkSize sets how many images share one gateway call.
func WithChunkSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.chunkSize = n
		}
	}
}

// WithRenameTTL sets how long self-renamed paths are remembered.
func WithRenameTTL(ttl time.Duration) IndexerOption {
	return func(idx *Indexer) {
		if ttl > 0 {
			idx.renamed = expirable.NewLRU[string, struct{}](renameCacheSize, nil, ttl)
		}
	}
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(thumbs thumbnail.Thumbnailer, gateway embedding.Gateway, records RecordWriter, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		thumbs:    thumbs,
		gateway:   gateway,
		records:   records,
		chunkSize: DefaultChunkSize,
		renamed:   expirable.NewLRU[string, struct{}](renameCacheSize, nil, DefaultRenameTTL),
		inFlight:  make(map[*flight]struct{}),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// RecentlyRenamed reports whether path was the source or target of a rename done by the pipeline.
func (idx *Indexer) RecentlyRenamed(path string) bool {
	return idx.renamed.Contains(path)
}

// ConsumeRename reports whether path was touched by a pipeline rename and forgets it, so only
// the first event for each side of the rename is suppressed.
func (idx *Indexer) ConsumeRename(path string) bool {
	return idx.renamed.Remove(path)
}

// IndexBatch indexes paths under root chunk by chunk. A failed chunk is logged, reported through
// progress and collected in the outcome; the remaining chunks still run. Cancelling ctx stops
// before the next chunk and leaves the rest counted as failed.
func (idx *Indexer) IndexBatch(ctx context.Context, root string, paths []string, enableRename bool, progress models.ProgressFunc) models.BatchOutcome {
	outcome := models.BatchOutcome{Total: len(paths)}
	done := 0
	for _, chunk := range Partition(paths, idx.chunkSize) {
		if err := ctx.Err(); err != nil {
			outcome.Failed += len(paths) - done
			outcome.Errors = append(outcome.Errors, err)
			break
		}
		err := idx.indexChunk(ctx, root, chunk, enableRename)
		done += len(chunk)
		if err != nil {
			outcome.Failed += len(chunk)
			outcome.Errors = append(outcome.Errors, err)
			idx.logger.Warn("indexing chunk failed",
				zap.String("root", root),
				zap.Int("files", len(chunk)),
				zap.Error(err))
		} else {
			outcome.Indexed += len(chunk)
			idx.logger.Debug("indexing chunk done",
				zap.String("root", root),
				zap.Int("files", len(chunk)),
				zap.Int("current", done),
				zap.Int("total", len(paths)))
		}
		if progress != nil {
			progress(models.Progress{Total: len(paths), Current: done, Err: err})
		}
	}
	return outcome
}

func (idx *Indexer) indexChunk(ctx context.Context, root string, chunk []string, enableRename bool) (err error) {
	inflight := idx.track(chunk)
	defer idx.untrack(inflight)

	thumbs, err := idx.generate(ctx, chunk)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			thumbnail.Remove(thumbs...)
		}
	}()

	embeddings, err := idx.gateway.DescribeImages(ctx, thumbs, enableRename)
	if err != nil {
		return fmt.Errorf("describe %d images: %w", len(thumbs), err)
	}
	if len(embeddings) != len(chunk) {
		return &models.RemoteServiceError{
			Status: 200,
			Body:   fmt.Sprintf("gateway returned %d results for %d images", len(embeddings), len(chunk)),
		}
	}

	sources := idx.current(inflight)
	finals := sources
	if enableRename {
		finals, err = idx.renameAll(sources, embeddings)
		if err != nil {
			return err
		}
	}

	// Held through the upsert: a removal reported now waits and then deletes what was written.
	idx.flightMu.Lock()
	defer idx.flightMu.Unlock()

	now := idx.now().UTC()
	records := make([]*models.IndexRecord, 0, len(chunk))
	for i, emb := range embeddings {
		path := finals[i]
		if inflight.gone[i] {
			path = ""
		} else if inflight.paths[i] != sources[i] {
			path = inflight.paths[i]
		}
		if path != "" {
			if _, statErr := os.Stat(path); statErr != nil {
				path = ""
			}
		}
		if path == "" {
			idx.logger.Debug("image vanished while indexing", zap.String("path", chunk[i]))
			thumbnail.Remove(thumbs[i])
			continue
		}
		records = append(records, &models.IndexRecord{
			Name:        filepath.Base(path),
			Path:        path,
			Root:        root,
			Thumbnail:   thumbs[i],
			Description: emb.Description,
			Vector:      emb.Vector,
			IndexedAt:   now,
		})
	}
	if len(records) == 0 {
		return nil
	}
	if err := idx.records.UpsertBatch(ctx, records); err != nil {
		if !errors.Is(err, models.ErrIndexWrite) {
			err = fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
		}
		return err
	}
	return nil
}

// generate renders one thumbnail per source concurrently. On failure every thumbnail already
// written is removed.
func (idx *Indexer) generate(ctx context.Context, chunk []string) ([]string, error) {
	thumbs := make([]string, len(chunk))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range chunk {
		g.Go(func() error {
			out, err := idx.thumbs.Generate(gctx, src)
			if err != nil {
				if !errors.Is(err, models.ErrFileSystem) {
					err = fmt.Errorf("%w: thumbnail %s: %w", models.ErrFileSystem, src, err)
				}
				return err
			}
			thumbs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		thumbnail.Remove(thumbs...)
		return nil, err
	}
	return thumbs, nil
}

// renameAll renames each source with a suggested name. Empty sources are skipped. If any rename
// fails the ones already done in this chunk are moved back.
func (idx *Indexer) renameAll(chunk []string, embeddings []models.ImageEmbedding) ([]string, error) {
	finals := make([]string, len(chunk))
	var moved [][2]string
	for i, src := range chunk {
		finals[i] = src
		name := sanitizeName(embeddings[i].SuggestedName, filepath.Ext(src))
		if src == "" || name == "" {
			continue
		}
		dst, err := idx.renameFile(src, name)
		if err != nil {
			for j := len(moved) - 1; j >= 0; j-- {
				if rbErr := os.Rename(moved[j][1], moved[j][0]); rbErr != nil {
					idx.logger.Error("rename rollback failed",
						zap.String("from", moved[j][1]),
						zap.String("to", moved[j][0]),
						zap.Error(rbErr))
				}
			}
			return nil, err
		}
		if dst != src {
			moved = append(moved, [2]string{src, dst})
		}
		finals[i] = dst
	}
	return finals, nil
}

// renameFile moves src to name in the same directory, keeping the extension. Taken names are
// skipped by appending _1, _2 and so on.
func (idx *Indexer) renameFile(src, name string) (string, error) {
	idx.renameMu.Lock()
	defer idx.renameMu.Unlock()

	dir, ext := filepath.Dir(src), filepath.Ext(src)
	for n := 0; n < maxRenameSuffix; n++ {
		candidate := name
		if n > 0 {
			candidate = name + "_" + strconv.Itoa(n)
		}
		dst := filepath.Join(dir, candidate+ext)
		if dst == src {
			return src, nil
		}
		if _, err := os.Lstat(dst); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: stat %s: %w", models.ErrFileSystem, dst, err)
		}
		idx.renamed.Add(src, struct{}{})
		idx.renamed.Add(dst, struct{}{})
		if err := os.Rename(src, dst); err != nil {
			idx.renamed.Remove(dst)
			return "", fmt.Errorf("%w: rename %s: %w", models.ErrFileSystem, src, err)
		}
		idx.logger.Debug("image renamed", zap.String("from", src), zap.String("to", dst))
		return dst, nil
	}
	return "", fmt.Errorf("%w: no free name for %s in %s", models.ErrFileSystem, name, dir)
}

// sanitizeName reduces a suggested name to a bare file stem.
func sanitizeName(name, ext string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	if ext != "" && strings.HasSuffix(name, ext) {
		name = strings.TrimSuffix(name, ext)
	}
	name = strings.Trim(name, ". ")
	return name
}
