package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"idcloud-mcp/internal/logging"
)

// DefaultStorePath returns the default on-disk token location under the
// user's home directory.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".idcloud-mcp", "token.json"), nil
}

// NewStore constructs the token store the config asks for.
func NewStore(cfg Config, logger *slog.Logger) (TokenStore, error) {
	switch cfg.Store {
	case StoreFile:
		path := cfg.StorePath
		if path == "" {
			p, err := DefaultStorePath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewFileStore(path, logger), nil
	case StoreKeyring:
		return NewKeyringStore(cfg.TenantHost(), logger), nil
	case StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// FileStore persists the token record as JSON on disk. The file is written
// 0600 inside a 0700 directory; a missing or unreadable file reads as a
// cache miss rather than an error, so a corrupt store only costs one fresh
// login.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStore builds a file-backed store at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logging.WithComponent(logger, "token-store")}
}

func (s *FileStore) Get() (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("token file unreadable, treating as empty", logging.Err(err))
		}
		return nil, nil
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("token file corrupt, treating as empty", logging.Err(err))
		return nil, nil
	}
	return &rec, nil
}

func (s *FileStore) Set(record *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token record: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// MemoryStore keeps the record in process memory only. Useful for tests and
// for callers that never want a credential on disk.
type MemoryStore struct {
	mu  sync.Mutex
	rec *TokenRecord
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Get() (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, nil
	}
	cp := *s.rec
	return &cp, nil
}

func (s *MemoryStore) Set(record *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.rec = &cp
	return nil
}

func (s *MemoryStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}
