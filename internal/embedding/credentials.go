package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultAPIKeyEnv is read by EnvCredentials.
const DefaultAPIKeyEnv = "GAZOU_API_KEY"

// CredentialStore supplies the API key for the remote service.
// ok is false when no key is configured.
type CredentialStore interface {
	APIKey(ctx context.Context) (key string, ok bool, err error)
}

// StaticCredentials always returns the same key. An empty key means none.
type StaticCredentials string

// APIKey implements CredentialStore.
func (s StaticCredentials) APIKey(context.Context) (string, bool, error) {
	return string(s), s != "", nil
}

// EnvCredentials reads the key from an environment variable.
type EnvCredentials struct {
	Var string
}

// APIKey implements CredentialStore.
func (e EnvCredentials) APIKey(context.Context) (string, bool, error) {
	name := e.Var
	if name == "" {
		name = DefaultAPIKeyEnv
	}
	key := strings.TrimSpace(os.Getenv(name))
	return key, key != "", nil
}

// ChainCredentials returns the first key any store provides.
type ChainCredentials []CredentialStore

// APIKey implements CredentialStore.
func (c ChainCredentials) APIKey(ctx context.Context) (string, bool, error) {
	for _, s := range c {
		key, ok, err := s.APIKey(ctx)
		if err != nil {
			return "", false, err
		}
		if ok {
			return key, true, nil
		}
	}
	return "", false, nil
}

// FileCredentials keeps the key in a small YAML file readable only by the user.
type FileCredentials struct {
	path string
	mu   sync.Mutex
}

type credentialsFile struct {
	APIKey string `yaml:"apikey"`
}

// NewFileCredentials returns a store backed by path. The file need not exist yet.
func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

// APIKey implements CredentialStore.
func (f *FileCredentials) APIKey(context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read credentials: %w", err)
	}
	var cf credentialsFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return "", false, fmt.Errorf("parse credentials: %w", err)
	}
	key := strings.TrimSpace(cf.APIKey)
	return key, key != "", nil
}

// SetAPIKey stores key, replacing any previous one. An empty key clears it.
func (f *FileCredentials) SetAPIKey(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := yaml.Marshal(credentialsFile{APIKey: strings.TrimSpace(key)})
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0600)
}
