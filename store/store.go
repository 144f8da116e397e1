package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	oauthclient "github.com/giantswarm/oauth-client"
)

// FileStore persists serialized AuthState blobs as files under a single
// directory, one file per key. Keys are arbitrary caller identifiers,
// typically an issuer URL or account name; they are hashed for the
// filename so any string is a valid key.
//
// Files are written with owner-only permissions. When the store was
// created with an encryption key, blobs are encrypted at rest.
type FileStore struct {
	dir       string
	encryptor *Encryptor
	logger    *slog.Logger
}

// NewFileStore creates a store rooted at dir, creating the directory with
// owner-only permissions when absent. A nil or empty encryption key
// disables encryption; see DeriveKey for deriving one from a passphrase.
func NewFileStore(dir string, encryptionKey []byte, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	encryptor, err := NewEncryptor(encryptionKey)
	if err != nil {
		return nil, err
	}

	return &FileStore{
		dir:       dir,
		encryptor: encryptor,
		logger:    logger,
	}, nil
}

// Save serializes state and writes it under key, replacing any previous
// blob.
func (s *FileStore) Save(key string, state *oauthclient.AuthState) error {
	if state == nil {
		return fmt.Errorf("state must not be nil")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize auth state: %w", err)
	}
	data, err = s.encryptor.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt auth state: %w", err)
	}

	path := s.path(key)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write auth state: %w", err)
	}

	s.logger.Debug("auth state saved", "path", path, "encrypted", s.encryptor.IsEnabled())
	return nil
}

// Load reads and deserializes the blob stored under key into state. The
// state keeps its configured clock and tolerance. A missing key is
// reported via ErrNotFound.
func (s *FileStore) Load(key string, state *oauthclient.AuthState) error {
	if state == nil {
		return fmt.Errorf("state must not be nil")
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read auth state: %w", err)
	}

	data, err = s.encryptor.Decrypt(data)
	if err != nil {
		return fmt.Errorf("failed to decrypt auth state: %w", err)
	}
	if err := json.Unmarshal(data, state); err != nil {
		return fmt.Errorf("failed to deserialize auth state: %w", err)
	}
	return nil
}

// Delete removes the blob stored under key. Deleting an absent key is not
// an error.
func (s *FileStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete auth state: %w", err)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".json")
}

// ErrNotFound is returned by Load when no blob exists under the key.
var ErrNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "auth state not found" }
