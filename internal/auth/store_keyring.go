package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"

	"idcloud-mcp/internal/logging"
)

// keyringService is the service name records are filed under in the OS
// credential manager.
const keyringService = "idcloud-mcp"

// KeyringStore persists the token record in the operating system keychain
// (macOS Keychain, Windows Credential Manager, Secret Service on Linux).
// Records are keyed per tenant so multiple tenants can coexist.
type KeyringStore struct {
	tenant string
	logger *slog.Logger
}

// NewKeyringStore builds a keychain-backed store for the tenant.
func NewKeyringStore(tenant string, logger *slog.Logger) *KeyringStore {
	return &KeyringStore{tenant: tenant, logger: logging.WithComponent(logger, "token-store")}
}

func (s *KeyringStore) Get() (*TokenRecord, error) {
	data, err := keyring.Get(keyringService, s.tenant)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			s.logger.Warn("keychain read failed, treating as empty", logging.Err(err))
		}
		return nil, nil
	}

	var rec TokenRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		s.logger.Warn("keychain entry corrupt, treating as empty", logging.Err(err))
		return nil, nil
	}
	return &rec, nil
}

func (s *KeyringStore) Set(record *TokenRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding token record: %w", err)
	}
	if err := keyring.Set(keyringService, s.tenant, string(data)); err != nil {
		return fmt.Errorf("writing keychain entry: %w", err)
	}
	return nil
}

func (s *KeyringStore) Delete() error {
	if err := keyring.Delete(keyringService, s.tenant); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		// A stuck keychain entry should not block logout of the rest of the
		// session state.
		s.logger.Warn("keychain delete failed", logging.Err(err))
	}
	return nil
}
