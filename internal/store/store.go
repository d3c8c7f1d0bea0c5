// Package store keeps index records, their vectors and their descriptions consistent across
// SQLite, the nearest-neighbor index and the keyword index. SQLite is the source of truth;
// both in-memory indexes are rebuilt from it on open.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/keyword"
	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/storage"
	"github.com/hyperjump/gazou/internal/vector"
	"github.com/hyperjump/gazou/pkg/utils"
)

const rebuildBatch = 512

// Neighbor is a record with its similarity to a query.
type Neighbor struct {
	Record *models.IndexRecord
	Score  float64
}

// Store is the vector store used by the pipeline, the watcher and search.
type Store struct {
	records    storage.RecordStorage
	vectors    vector.VectorIndex
	keywords   keyword.KeywordIndex
	dimensions int
	logger     *zap.Logger
	mu         sync.Mutex // serializes writes so the three backends apply them in the same order
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeywordIndex enables description search. Without it TextSearch returns nothing.
func WithKeywordIndex(k keyword.KeywordIndex) Option {
	return func(s *Store) { s.keywords = k }
}

// Open wires the backends together and loads every stored vector into the index.
func Open(ctx context.Context, records storage.RecordStorage, vectors vector.VectorIndex, dimensions int, opts ...Option) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	s := &Store{
		records:    records,
		vectors:    vectors,
		dimensions: dimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.rebuild(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) rebuild(ctx context.Context) error {
	var (
		ids     []string
		vecs    [][]float32
		batch   []*models.IndexRecord
		skipped int
	)
	reindexKeywords, err := s.keywordsStale(ctx)
	if err != nil {
		return err
	}
	flush := func() error {
		if len(ids) > 0 {
			if err := s.vectors.Add(ctx, ids, vecs); err != nil {
				return fmt.Errorf("load vectors: %w", err)
			}
		}
		if reindexKeywords && len(batch) > 0 {
			if err := s.keywords.Index(ctx, batch); err != nil {
				return fmt.Errorf("load keywords: %w", err)
			}
		}
		ids, vecs, batch = ids[:0], vecs[:0], batch[:0]
		return nil
	}
	err = s.records.ForEachRecord(ctx, func(rec *models.IndexRecord) error {
		if len(rec.Vector) != s.dimensions {
			skipped++
			return nil
		}
		ids = append(ids, rec.Path)
		vecs = append(vecs, rec.Vector)
		batch = append(batch, rec)
		if len(ids) >= rebuildBatch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	if skipped > 0 {
		s.logger.Warn("skipped records with wrong vector dimension", zap.Int("count", skipped), zap.Int("dimensions", s.dimensions))
	}
	s.logger.Info("vector store loaded", zap.Int("vectors", s.vectors.Size()), zap.String("index", s.vectors.Type()), zap.Bool("keywords_rebuilt", reindexKeywords))
	return nil
}

func (s *Store) keywordsStale(ctx context.Context) (bool, error) {
	if s.keywords == nil {
		return false, nil
	}
	n, err := s.records.CountRecords(ctx)
	if err != nil {
		return false, err
	}
	docs, err := s.keywords.DocCount()
	if err != nil {
		return true, nil
	}
	return uint64(n) != docs, nil
}

// Dimensions returns the contracted vector length.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// UpsertBatch writes records idempotently by path; the last write wins.
// Any record with a vector of the wrong dimension rejects the whole batch.
func (s *Store) UpsertBatch(ctx context.Context, records []*models.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if len(rec.Vector) != s.dimensions {
			return fmt.Errorf("%w: %s has vector dimension %d, expected %d", models.ErrIndexWrite, rec.Path, len(rec.Vector), s.dimensions)
		}
	}
	normalized := make([]*models.IndexRecord, len(records))
	ids := make([]string, len(records))
	vecs := make([][]float32, len(records))
	for i, rec := range records {
		r := *rec
		r.Vector = utils.Normalized(rec.Vector)
		normalized[i] = &r
		ids[i] = r.Path
		vecs[i] = r.Vector
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stale := s.replacedThumbnails(ctx, normalized)
	if err := s.records.UpsertRecords(ctx, normalized); err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
	}
	if err := s.vectors.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
	}
	if s.keywords != nil {
		if err := s.keywords.Index(ctx, normalized); err != nil {
			s.logger.Warn("keyword index update failed", zap.Error(err))
		}
	}
	removeThumbnails(s.logger, stale)
	for i, rec := range records {
		rec.IndexedAt = normalized[i].IndexedAt
	}
	return nil
}

// replacedThumbnails returns thumbnails of existing records that the upsert will orphan.
func (s *Store) replacedThumbnails(ctx context.Context, records []*models.IndexRecord) []string {
	var stale []string
	for _, rec := range records {
		old, err := s.records.GetRecord(ctx, rec.Path)
		if err != nil {
			continue
		}
		if old.Thumbnail != "" && old.Thumbnail != rec.Thumbnail {
			stale = append(stale, old.Thumbnail)
		}
	}
	return stale
}

// Delete removes the record at path and, when path is a directory, every record beneath it.
// Deleting an absent path is a no-op. It returns how many records were removed.
func (s *Store) Delete(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, err := s.records.DeleteUnder(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
	}
	return len(removed), s.dropLocked(ctx, removed)
}

// DeleteRoot removes every record belonging to a registered root.
func (s *Store) DeleteRoot(ctx context.Context, root string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, err := s.records.DeleteByRoot(ctx, root)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
	}
	return len(removed), s.dropLocked(ctx, removed)
}

func (s *Store) dropLocked(ctx context.Context, removed []*models.IndexRecord) error {
	if len(removed) == 0 {
		return nil
	}
	paths := make([]string, len(removed))
	thumbs := make([]string, 0, len(removed))
	for i, rec := range removed {
		paths[i] = rec.Path
		if rec.Thumbnail != "" {
			thumbs = append(thumbs, rec.Thumbnail)
		}
	}
	if err := s.vectors.Remove(ctx, paths); err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
	}
	if s.keywords != nil {
		if err := s.keywords.Delete(ctx, paths); err != nil {
			s.logger.Warn("keyword index delete failed", zap.Error(err))
		}
	}
	removeThumbnails(s.logger, thumbs)
	return nil
}

// Rename moves a record from one path to another. It reports false when no record was at from.
func (s *Store) Rename(ctx context.Context, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	move, err := s.records.RenameRecord(ctx, from, to)
	if err != nil {
		return false, fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
	}
	if move == nil || from == to {
		return move != nil, nil
	}
	return true, s.moveLocked(ctx, []storage.PathMove{*move})
}

// RenamePrefix rewrites every record beneath fromDir to sit beneath toDir.
func (s *Store) RenamePrefix(ctx context.Context, fromDir, toDir string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moves, err := s.records.RenameUnder(ctx, fromDir, toDir)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
	}
	return len(moves), s.moveLocked(ctx, moves)
}

func (s *Store) moveLocked(ctx context.Context, moves []storage.PathMove) error {
	if len(moves) == 0 {
		return nil
	}
	from := make([]string, len(moves))
	ids := make([]string, 0, len(moves))
	vecs := make([][]float32, 0, len(moves))
	recs := make([]*models.IndexRecord, 0, len(moves))
	var displaced []string
	for i, m := range moves {
		from[i] = m.From
		if m.Displaced != "" {
			displaced = append(displaced, m.Displaced)
		}
		rec, err := s.records.GetRecord(ctx, m.To)
		if err != nil {
			return fmt.Errorf("%w: reload %s: %w", models.ErrIndexWrite, m.To, err)
		}
		ids = append(ids, rec.Path)
		vecs = append(vecs, rec.Vector)
		recs = append(recs, rec)
	}
	if err := s.vectors.Remove(ctx, from); err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
	}
	if err := s.vectors.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
	}
	if s.keywords != nil {
		if err := s.keywords.Delete(ctx, from); err != nil {
			s.logger.Warn("keyword index delete failed", zap.Error(err))
		}
		if err := s.keywords.Index(ctx, recs); err != nil {
			s.logger.Warn("keyword index update failed", zap.Error(err))
		}
	}
	removeThumbnails(s.logger, displaced)
	return nil
}

// Exists reports whether a record is stored at path.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	return s.records.RecordExists(ctx, path)
}

// Get returns the record at path or an error wrapping models.ErrNotFound.
func (s *Store) Get(ctx context.Context, path string) (*models.IndexRecord, error) {
	return s.records.GetRecord(ctx, path)
}

// ListByRoot returns the records of one registered root ordered by path.
func (s *Store) ListByRoot(ctx context.Context, root string) ([]*models.IndexRecord, error) {
	return s.records.ListByRoot(ctx, root)
}

// List returns records ordered by path.
func (s *Store) List(ctx context.Context, offset, limit int) ([]*models.IndexRecord, error) {
	return s.records.ListRecords(ctx, offset, limit)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.records.CountRecords(ctx)
}

// NearestNeighbors returns up to k records by descending cosine similarity to query,
// ties broken by ascending path.
func (s *Store) NearestNeighbors(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: query dimension %d, expected %d", models.ErrInvalidInput, len(query), s.dimensions)
	}
	hits, err := s.vectors.Search(ctx, utils.Normalized(query), k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return s.resolve(ctx, hits)
}

// TextSearch matches query against names and descriptions.
func (s *Store) TextSearch(ctx context.Context, query string, k int, opts *keyword.SearchOptions) ([]Neighbor, error) {
	if s.keywords == nil || k <= 0 {
		return nil, nil
	}
	hits, err := s.keywords.Search(ctx, query, k, opts)
	if err != nil {
		return nil, err
	}
	results := make([]*vector.VectorResult, len(hits))
	for i, h := range hits {
		results[i] = &vector.VectorResult{ID: h.ID, Score: h.Score}
	}
	return s.resolve(ctx, results)
}

func (s *Store) resolve(ctx context.Context, hits []*vector.VectorResult) ([]Neighbor, error) {
	out := make([]Neighbor, 0, len(hits))
	for _, h := range hits {
		rec, err := s.records.GetRecord(ctx, h.ID)
		if errors.Is(err, models.ErrNotFound) {
			// Deleted between the index lookup and now.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Neighbor{Record: rec, Score: h.Score})
	}
	return out, nil
}

// Stats describes the in-memory indexes.
type Stats struct {
	IndexType    string `json:"index_type"`
	Vectors      int    `json:"vectors"`
	KeywordDocs  uint64 `json:"keyword_docs"`
	IndexTrained bool   `json:"index_trained"`
}

// Stats returns index statistics.
func (s *Store) Stats() Stats {
	st := Stats{IndexType: s.vectors.Type(), Vectors: s.vectors.Size(), IndexTrained: true}
	if ivf, ok := s.vectors.(*vector.IVFIndex); ok {
		st.IndexTrained = ivf.Trained()
	}
	if s.keywords != nil {
		st.KeywordDocs, _ = s.keywords.DocCount()
	}
	return st
}

// Close closes the in-memory indexes. The record storage is owned by the caller.
func (s *Store) Close() error {
	var errs []error
	if err := s.vectors.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.keywords != nil {
		if err := s.keywords.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func removeThumbnails(logger *zap.Logger, paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Debug("remove thumbnail failed", zap.String("path", p), zap.Error(err))
		}
	}
}
