package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Persisted keys. The names are shared with existing installations and must not change.
const (
	KeyAccessToken  = "authAccessToken"
	KeyRefreshToken = "authRefreshToken"
	KeyRestaurantID = "restaurantId"
	KeyUser         = "authUser"
	KeyLanguage     = "app-language"
)

// AuthKeys are the keys owned by the session lifecycle.
var AuthKeys = []string{KeyAccessToken, KeyRefreshToken, KeyRestaurantID, KeyUser}

// Sentinel errors
var (
	// ErrKeyNotFound is returned when a key has no stored value.
	ErrKeyNotFound = errors.New("key not found")

	// ErrStorage wraps any failure to read or write the backing store.
	ErrStorage = errors.New("credential storage error")
)

// Store is a durable key-value store for session state.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// document is the on-disk layout of the file store.
type document struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// FileStore keeps all values in a single JSON document on the local filesystem.
type FileStore struct {
	mu      sync.Mutex
	baseDir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a new file-backed store.
// If baseDir is empty, uses ~/.backoffice/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".backoffice")
	}

	// Create directory with 0700 permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	store := &FileStore{baseDir: baseDir}

	if err := store.ensureDocument(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("credential store initialized")

	return store, nil
}

// Get returns the value stored under key.
func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}

	value, ok := doc.Values[key]
	if !ok {
		return "", ErrKeyNotFound
	}

	return value, nil
}

// Set stores value under key.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	doc.Values[key] = value

	return s.save(doc)
}

// Delete removes the given keys. Missing keys are ignored.
func (s *FileStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	for _, key := range keys {
		delete(doc.Values, key)
	}

	return s.save(doc)
}

func (s *FileStore) path() string {
	return filepath.Join(s.baseDir, "store.json")
}

// ensureDocument creates an empty document if it doesn't exist.
func (s *FileStore) ensureDocument() error {
	if _, err := os.Stat(s.path()); err == nil {
		return nil
	}

	return s.save(&document{
		Version: 1,
		Values:  make(map[string]string),
	})
}

func (s *FileStore) load() (*document, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return &document{Version: 1, Values: make(map[string]string)}, nil
		}
		return nil, fmt.Errorf("%w: failed to read store: %v", ErrStorage, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse store: %v", ErrStorage, err)
	}

	if doc.Values == nil {
		doc.Values = make(map[string]string)
	}

	return &doc, nil
}

// save writes the document atomically.
func (s *FileStore) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal store: %v", ErrStorage, err)
	}

	tempPath := s.path() + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("%w: failed to write store: %v", ErrStorage, err)
	}

	if err := os.Rename(tempPath, s.path()); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: failed to save store: %v", ErrStorage, err)
	}

	return nil
}
