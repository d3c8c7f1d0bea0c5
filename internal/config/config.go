// Package config provides configuration loading and structs for the gazou server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	LogFile     string            `yaml:"log_file,omitempty"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Vector      VectorConfig      `yaml:"vector"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Indexing    IndexingConfig    `yaml:"indexing"`
	Watch       WatchConfig       `yaml:"watch"`
	Registry    RegistryConfig    `yaml:"registry"`
	Search      SearchConfig      `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds paths for the database, thumbnails and the description index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	ThumbnailDir   string `yaml:"thumbnail_dir"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// VectorConfig selects and tunes the ANN index.
type VectorConfig struct {
	IndexType      string `yaml:"index_type"`
	Dimensions     int    `yaml:"dimensions"`
	NList          int    `yaml:"nlist"`
	NProbe         int    `yaml:"nprobe"`
	TrainThreshold int    `yaml:"train_threshold"`
}

// EmbeddingConfig holds the remote gateway settings. Mock swaps in the deterministic offline gateway.
type EmbeddingConfig struct {
	Host              string        `yaml:"host"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	QueryCacheSize    int           `yaml:"query_cache_size"`
	Mock              bool          `yaml:"mock"`
}

// CredentialsConfig locates the API key file.
type CredentialsConfig struct {
	APIKeyFile string `yaml:"api_key_file"`
}

// IndexingConfig tunes the indexing pipeline.
type IndexingConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`
	ThumbnailWidth int           `yaml:"thumbnail_width"`
	RenameTTL      time.Duration `yaml:"rename_ttl"`
}

// WatchConfig tunes change detection.
type WatchConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	RenameWindow time.Duration `yaml:"rename_window"`
}

// RegistryConfig controls directory lifecycle behavior.
type RegistryConfig struct {
	ResyncOnStart *bool `yaml:"resync_on_start"`
	PurgeOnRemove bool  `yaml:"purge_on_remove"`
}

// ResyncOnStartOrDefault returns whether to reconcile directories on start; defaults to true when unset.
func (r *RegistryConfig) ResyncOnStartOrDefault() bool {
	if r.ResyncOnStart != nil {
		return *r.ResyncOnStart
	}
	return true
}

// SearchConfig holds result size settings.
type SearchConfig struct {
	DefaultTop          int     `yaml:"default_top"`
	MaxTop              int     `yaml:"max_top"`
	ShortCircuitZeroTop *bool   `yaml:"short_circuit_zero_top"`
	// NameBoost and Fuzzy tune description search.
	NameBoost           float64 `yaml:"name_boost"`
	Fuzzy               bool    `yaml:"fuzzy"`
}

// ShortCircuitZeroTopOrDefault returns whether top=0 skips the gateway; defaults to true when unset.
func (s *SearchConfig) ShortCircuitZeroTopOrDefault() bool {
	if s.ShortCircuitZeroTop != nil {
		return *s.ShortCircuitZeroTop
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.ThumbnailDir = expandPath(cfg.Storage.ThumbnailDir, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Credentials.APIKeyFile = expandPath(cfg.Credentials.APIKeyFile, configDir)
	if cfg.LogFile != "" {
		cfg.LogFile = expandPath(cfg.LogFile, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// a leading "~/" and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}
