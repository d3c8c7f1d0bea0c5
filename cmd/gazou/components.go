package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/config"
	"github.com/hyperjump/gazou/internal/embedding"
	"github.com/hyperjump/gazou/internal/indexer"
	"github.com/hyperjump/gazou/internal/keyword"
	"github.com/hyperjump/gazou/internal/registry"
	"github.com/hyperjump/gazou/internal/search"
	"github.com/hyperjump/gazou/internal/storage"
	"github.com/hyperjump/gazou/internal/store"
	"github.com/hyperjump/gazou/internal/thumbnail"
	"github.com/hyperjump/gazou/internal/vector"
	"github.com/hyperjump/gazou/internal/watcher"
)

// Components holds initialized services.
type Components struct {
	Storage  *storage.SQLiteStorage
	Store    *store.Store
	Gateway  *embedding.CachedGateway
	Thumbs   *thumbnail.Generator
	Indexer  *indexer.Indexer
	Registry *registry.Registry
	Search   *search.Service
}

// Close releases the components in reverse dependency order.
func (c *Components) Close() error {
	var errs []error
	if c.Registry != nil {
		errs = append(errs, c.Registry.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Storage != nil {
		errs = append(errs, c.Storage.Close())
	}
	return errors.Join(errs...)
}

// DiskPaths lists everything gazou writes to disk.
func (c *Components) DiskPaths(cfg *config.Config) []string {
	paths := storage.SQLiteFiles(cfg.Storage.DatabasePath)
	return append(paths, cfg.Storage.BleveIndexPath, cfg.Storage.ThumbnailDir)
}

// credentials prefers the environment over the key file.
func credentials(cfg *config.Config) embedding.CredentialStore {
	return embedding.ChainCredentials{
		embedding.EnvCredentials{Var: embedding.DefaultAPIKeyEnv},
		embedding.NewFileCredentials(cfg.Credentials.APIKeyFile),
	}
}

func newGateway(cfg *config.Config, logger *zap.Logger) embedding.Gateway {
	if cfg.Embedding.Mock {
		logger.Warn("using mock embedding gateway")
		return embedding.NewMockGateway(cfg.Vector.Dimensions)
	}
	return embedding.NewHTTPGateway(cfg.Embedding.Host, credentials(cfg),
		embedding.WithTimeout(cfg.Embedding.Timeout),
		embedding.WithRateLimit(cfg.Embedding.RequestsPerSecond, cfg.Embedding.Burst),
		embedding.WithLogger(logger))
}

// initializeComponents wires storage, indexes, gateway and services. The registry is built
// but not opened; callers that want watchers call Registry.Open.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	vec, err := vector.NewVectorIndex(cfg.Vector.IndexType, cfg.Vector.Dimensions,
		vector.WithNList(cfg.Vector.NList),
		vector.WithNProbe(cfg.Vector.NProbe),
		vector.WithTrainThreshold(cfg.Vector.TrainThreshold),
		vector.WithIVFLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = vec.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.Store, err = store.Open(ctx, c.Storage, vec, cfg.Vector.Dimensions,
		store.WithKeywordIndex(kw),
		store.WithLogger(logger))
	if err != nil {
		_ = vec.Close()
		_ = kw.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	c.Gateway, err = embedding.NewCachedGateway(newGateway(cfg, logger), cfg.Embedding.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gateway cache: %w", err)
	}
	c.Thumbs, err = thumbnail.NewGenerator(cfg.Storage.ThumbnailDir,
		thumbnail.WithWidth(cfg.Indexing.ThumbnailWidth),
		thumbnail.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	c.Indexer = indexer.NewIndexer(c.Thumbs, c.Gateway, c.Store,
		indexer.WithChunkSize(cfg.Indexing.ChunkSize),
		indexer.WithRenameTTL(cfg.Indexing.RenameTTL),
		indexer.WithLogger(logger))

	c.Registry = registry.New(c.Storage, c.Store, c.Indexer,
		registry.WithLogger(logger),
		registry.WithPurgeOnRemove(cfg.Registry.PurgeOnRemove),
		registry.WithResyncOnStart(cfg.Registry.ResyncOnStartOrDefault()),
		registry.WithWatcherOptions(
			watcher.WithDebounce(cfg.Watch.Debounce),
			watcher.WithRenameWindow(cfg.Watch.RenameWindow),
			watcher.WithIgnore(cfg.Storage.ThumbnailDir, cfg.Storage.BleveIndexPath),
		))

	c.Search = search.NewService(c.Gateway, c.Store, search.Config{
		MaxTop:              cfg.Search.MaxTop,
		ShortCircuitZeroTop: cfg.Search.ShortCircuitZeroTopOrDefault(),
		TextOptions: &keyword.SearchOptions{
			NameBoost:    cfg.Search.NameBoost,
			FuzzyEnabled: cfg.Search.Fuzzy,
		},
	}, search.WithLogger(logger))
	return c, nil
}
