package config

import "time"

const dataRoot = "/usr/local/var/gazou/data"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = dataRoot + "/db/gazou.db"
	}
	if cfg.Storage.ThumbnailDir == "" {
		cfg.Storage.ThumbnailDir = dataRoot + "/thumbnails"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = dataRoot + "/indices/bleve"
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "ivf"
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = 768
	}
	if cfg.Vector.NProbe == 0 {
		cfg.Vector.NProbe = 8
	}
	if cfg.Vector.TrainThreshold == 0 {
		cfg.Vector.TrainThreshold = 256
	}
	if cfg.Embedding.Host == "" {
		cfg.Embedding.Host = "http://localhost:9000"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 4
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 2
	}
	if cfg.Embedding.QueryCacheSize == 0 {
		cfg.Embedding.QueryCacheSize = 1024
	}
	if cfg.Credentials.APIKeyFile == "" {
		cfg.Credentials.APIKeyFile = dataRoot + "/credentials.yaml"
	}
	if cfg.Indexing.ChunkSize == 0 {
		cfg.Indexing.ChunkSize = 5
	}
	if cfg.Indexing.ThumbnailWidth == 0 {
		cfg.Indexing.ThumbnailWidth = 512
	}
	if cfg.Indexing.RenameTTL == 0 {
		cfg.Indexing.RenameTTL = 10 * time.Second
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 5 * time.Second
	}
	if cfg.Watch.RenameWindow == 0 {
		cfg.Watch.RenameWindow = 300 * time.Millisecond
	}
	if cfg.Search.DefaultTop == 0 {
		cfg.Search.DefaultTop = 10
	}
	if cfg.Search.MaxTop == 0 {
		cfg.Search.MaxTop = 100
	}
	if cfg.Search.NameBoost == 0 {
		cfg.Search.NameBoost = 2
	}
}
