package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
embedding:
  host: "https://images.example.com"
  timeout: 15s
watch:
  debounce: 2s
  rename_window: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("addr = %s", cfg.Server.Addr())
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Embedding.Host != "https://images.example.com" || cfg.Embedding.Timeout != 15*time.Second {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Watch.Debounce != 2*time.Second || cfg.Watch.RenameWindow != 500*time.Millisecond {
		t.Errorf("unexpected watch config: %+v", cfg.Watch)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/gazou.db"
  thumbnail_dir: "./data/thumbnails"
credentials:
  api_key_file: "./credentials.yaml"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "gazou.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantThumbs := filepath.Join(dir, "data", "thumbnails")
	if cfg.Storage.ThumbnailDir != wantThumbs {
		t.Errorf("thumbnail_dir = %s, want %s", cfg.Storage.ThumbnailDir, wantThumbs)
	}
	if cfg.Credentials.APIKeyFile != filepath.Join(dir, "credentials.yaml") {
		t.Errorf("api_key_file = %s", cfg.Credentials.APIKeyFile)
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Vector.IndexType != "ivf" || cfg.Vector.Dimensions != 768 || cfg.Vector.TrainThreshold != 256 {
		t.Errorf("vector defaults: got %+v", cfg.Vector)
	}
	if cfg.Indexing.ChunkSize != 5 || cfg.Indexing.ThumbnailWidth != 512 {
		t.Errorf("indexing defaults: got %+v", cfg.Indexing)
	}
	if cfg.Watch.Debounce != 5*time.Second {
		t.Errorf("default debounce: got %s", cfg.Watch.Debounce)
	}
	if cfg.Watch.RenameWindow != 300*time.Millisecond {
		t.Errorf("default rename window: got %s", cfg.Watch.RenameWindow)
	}
	if cfg.Search.DefaultTop != 10 || cfg.Search.MaxTop != 100 {
		t.Errorf("search defaults: got %+v", cfg.Search)
	}
	if cfg.Registry.PurgeOnRemove {
		t.Error("purge_on_remove should default to false")
	}
}

func TestApplyDefaults_keepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Vector:   VectorConfig{IndexType: "memory", Dimensions: 4},
		Indexing: IndexingConfig{ChunkSize: 2},
	}
	ApplyDefaults(cfg)
	if cfg.Vector.IndexType != "memory" || cfg.Vector.Dimensions != 4 || cfg.Indexing.ChunkSize != 2 {
		t.Errorf("explicit values overwritten: %+v %+v", cfg.Vector, cfg.Indexing)
	}
}

func TestOptionalBools(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		r := &RegistryConfig{}
		s := &SearchConfig{}
		if !r.ResyncOnStartOrDefault() || !s.ShortCircuitZeroTopOrDefault() {
			t.Error("unset flags should default to true")
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		r := &RegistryConfig{ResyncOnStart: &f}
		s := &SearchConfig{ShortCircuitZeroTop: &f}
		if r.ResyncOnStartOrDefault() || s.ShortCircuitZeroTopOrDefault() {
			t.Error("explicit false should be kept")
		}
	})
	t.Run("from_yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "search:\n  short_circuit_zero_top: false\nregistry:\n  purge_on_remove: true\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Search.ShortCircuitZeroTopOrDefault() {
			t.Error("short_circuit_zero_top: false not honored")
		}
		if !cfg.Registry.PurgeOnRemove {
			t.Error("purge_on_remove: true not honored")
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		Watch:   WatchConfig{Debounce: 3 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Watch.Debounce != 3*time.Second {
		t.Errorf("loaded debounce: got %s", loaded.Watch.Debounce)
	}
}
