// Package search answers similarity queries against the store.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/keyword"
	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/store"
)

// Embedder turns query text into a vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Index is the read side of the store.
type Index interface {
	NearestNeighbors(ctx context.Context, query []float32, k int) ([]store.Neighbor, error)
	TextSearch(ctx context.Context, query string, k int, opts *keyword.SearchOptions) ([]store.Neighbor, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Config controls result sizes.
type Config struct {
	// MaxTop caps top; zero means no cap.
	MaxTop int
	// ShortCircuitZeroTop answers top == 0 with no results without calling the gateway.
	ShortCircuitZeroTop bool
	// TextOptions tunes SearchText. Nil uses the keyword index defaults.
	TextOptions *keyword.SearchOptions
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{MaxTop: 100, ShortCircuitZeroTop: true}
}

// Service runs searches.
type Service struct {
	embedder Embedder
	index    Index
	config   Config
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a search service.
func NewService(embedder Embedder, index Index, cfg Config, opts ...Option) *Service {
	s := &Service{embedder: embedder, index: index, config: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search embeds keyword and returns up to top records by cosine similarity. Gateway errors
// (auth, network, remote service) are returned unchanged. With ShortCircuitZeroTop a zero top
// returns no results before the keyword is looked at.
func (s *Service) Search(ctx context.Context, keyword string, top int) ([]*models.SearchResult, error) {
	if top == 0 && s.config.ShortCircuitZeroTop {
		return []*models.SearchResult{}, nil
	}
	keyword, top, err := s.normalize(keyword, top)
	if err != nil {
		return nil, err
	}
	vec, err := s.embedder.EmbedText(ctx, keyword)
	if err != nil {
		return nil, err
	}
	if top == 0 {
		return []*models.SearchResult{}, nil
	}
	neighbors, err := s.index.NearestNeighbors(ctx, vec, top)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	s.logger.Debug("search", zap.String("keyword", keyword), zap.Int("top", top), zap.Int("results", len(neighbors)))
	return toResults(neighbors), nil
}

// SearchText matches keyword against names and descriptions without calling the gateway.
func (s *Service) SearchText(ctx context.Context, keyword string, top int) ([]*models.SearchResult, error) {
	keyword, top, err := s.normalize(keyword, top)
	if err != nil {
		return nil, err
	}
	if top == 0 {
		return []*models.SearchResult{}, nil
	}
	neighbors, err := s.index.TextSearch(ctx, keyword, top, s.config.TextOptions)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	return toResults(neighbors), nil
}

// Query validates req, runs Search and wraps the results with timing.
func (s *Service) Query(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	return s.timed(ctx, req, s.Search)
}

// QueryText is Query for SearchText.
func (s *Service) QueryText(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	return s.timed(ctx, req, s.SearchText)
}

func (s *Service) timed(ctx context.Context, req *models.SearchRequest, run func(context.Context, string, int) ([]*models.SearchResult, error)) (*models.SearchResponse, error) {
	start := time.Now()
	results, err := run(ctx, req.Keyword, req.Top)
	if err != nil {
		return nil, err
	}
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		Keyword:   req.Keyword,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// Exists reports whether path has been indexed.
func (s *Service) Exists(ctx context.Context, path string) (bool, error) {
	return s.index.Exists(ctx, path)
}

func (s *Service) normalize(keyword string, top int) (string, int, error) {
	req := models.SearchRequest{Keyword: strings.TrimSpace(keyword), Top: top}
	if err := req.Validate(s.config.MaxTop); err != nil {
		return "", 0, err
	}
	return req.Keyword, req.Top, nil
}

func toResults(neighbors []store.Neighbor) []*models.SearchResult {
	out := make([]*models.SearchResult, len(neighbors))
	for i, n := range neighbors {
		out[i] = models.NewSearchResult(n.Record, n.Score)
	}
	return out
}
