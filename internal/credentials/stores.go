package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// StaticStore serves secrets from configuration, resolving environment variables on every call.
type StaticStore struct {
	entries map[string]shared.CredentialConfig
}

// NewStaticStore creates a StaticStore from the [credentials.<service>] config tables.
func NewStaticStore(entries map[string]shared.CredentialConfig) *StaticStore {
	return &StaticStore{entries: entries}
}

func (s *StaticStore) Token(ctx context.Context, service string) (*models.CredentialToken, error) {
	entry, ok := s.entries[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrMissingCredentials, service)
	}
	secret := entry.ResolveSecret()
	if secret == "" {
		return nil, fmt.Errorf("%w: %s secret is empty", shared.ErrMissingCredentials, service)
	}
	return &models.CredentialToken{Service: service, Secret: secret, Refreshable: entry.Refreshable}, nil
}

// Refresh re-reads the secret, picking up a rotated environment variable.
func (s *StaticStore) Refresh(ctx context.Context, service string) (*models.CredentialToken, error) {
	entry, ok := s.entries[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrMissingCredentials, service)
	}
	if !entry.Refreshable {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotRefreshable, service)
	}
	secret := entry.ResolveSecret()
	if secret == "" {
		return nil, fmt.Errorf("%w: %s secret is empty", shared.ErrRefreshFailed, service)
	}
	return &models.CredentialToken{Service: service, Secret: secret, Refreshable: true}, nil
}

// FileStore persists tokens as a JSON object keyed by service.
//
// It cannot mint tokens: Refresh always reports missing credentials so a [Chain] falls through
// to the next backend. Use it as the [Saver] of a [Broker] to cache refreshed tokens across runs.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFileStore returns a FileStore at ~/.config/tunemeld/tokens.json.
func DefaultFileStore() (*FileStore, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting user config dir: %w", err)
	}
	return NewFileStore(filepath.Join(configDir, "tunemeld", "tokens.json")), nil
}

// Path returns the file path where tokens are stored.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Token(ctx context.Context, service string) (*models.CredentialToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.load()
	if err != nil {
		return nil, err
	}
	tok, ok := tokens[service]
	if !ok || tok.Secret == "" {
		return nil, fmt.Errorf("%w: %s not cached", shared.ErrMissingCredentials, service)
	}
	tok.Service = service
	return tok, nil
}

func (f *FileStore) Refresh(ctx context.Context, service string) (*models.CredentialToken, error) {
	return nil, fmt.Errorf("%w: %s cannot be refreshed from the token cache", shared.ErrMissingCredentials, service)
}

// Save writes the token to disk, creating the parent directory if needed.
func (f *FileStore) Save(token *models.CredentialToken) error {
	if token == nil || token.Service == "" {
		return errors.New("cannot save token without a service")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.load()
	if err != nil {
		return err
	}
	tokens[token.Service] = token

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// Delete removes the cached token file. Returns nil if the file does not exist.
func (f *FileStore) Delete() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

func (f *FileStore) load() (map[string]*models.CredentialToken, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]*models.CredentialToken), nil
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	tokens := make(map[string]*models.CredentialToken)
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}
	return tokens, nil
}
