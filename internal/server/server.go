// Package server provides the HTTP API for gazou.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/config"
	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/registry"
	"github.com/hyperjump/gazou/internal/store"
)

// Searcher answers similarity queries.
type Searcher interface {
	Query(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
	QueryText(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Directories manages registered roots.
type Directories interface {
	Add(ctx context.Context, dir models.RegisteredDirectory, progress models.ProgressFunc) (*registry.Task, error)
	Remove(ctx context.Context, rootPath string) error
	Statuses(ctx context.Context) ([]registry.DirectoryStatus, error)
	Task(rootPath string) (*registry.Task, error)
}

// Records exposes read access to the index.
type Records interface {
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, offset, limit int) ([]*models.IndexRecord, error)
	Stats() store.Stats
}

// Server is the HTTP server for the gazou API.
type Server struct {
	searcher   Searcher
	dirs       Directories
	records    Records
	config     *config.ServerConfig
	defaultTop int
	diskPaths  []string
	logger     *zap.Logger
	server     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithDiskPaths sets the files and directories summed into disk_usage_bytes on /status.
func WithDiskPaths(paths ...string) Option {
	return func(s *Server) {
		s.diskPaths = append(s.diskPaths, paths...)
	}
}

// WithDefaultTop sets the result count used when a search omits top.
func WithDefaultTop(top int) Option {
	return func(s *Server) {
		s.defaultTop = top
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	searcher Searcher,
	dirs Directories,
	records Records,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		searcher:   searcher,
		dirs:       dirs,
		records:    records,
		config:     cfg,
		defaultTop: 10,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/search", s.handleSearch)
		r.Post("/search/text", s.handleSearchText)
		r.Get("/directories", s.handleDirectoriesList)
		r.Post("/directories", s.handleDirectoriesAdd)
		r.Delete("/directories", s.handleDirectoriesRemove)
		r.Get("/directories/task", s.handleDirectoryTask)
		r.Get("/records", s.handleRecordExists)
		r.Get("/records/all", s.handleRecordsList)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
