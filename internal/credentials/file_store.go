package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvcrn/storefront-api-proxy/internal/env"
	"github.com/dvcrn/storefront-api-proxy/internal/logger"
)

// FileStore persists the credential as a JSON file readable only by the owner.
type FileStore struct {
	filePath string
}

// NewFileStore creates a file backed store. An empty path resolves to
// STOREFRONT_CREDS_PATH or ~/.storefront/credentials.json.
func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{filePath: path}
	if store.filePath == "" {
		if err := store.determineFilePath(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (f *FileStore) determineFilePath() error {
	if credsPath, ok := env.Get("STOREFRONT_CREDS_PATH"); ok {
		f.filePath = credsPath
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	f.filePath = filepath.Join(homeDir, ".storefront", "credentials.json")
	return nil
}

// Path returns the file the store reads and writes.
func (f *FileStore) Path() string {
	return f.filePath
}

func (f *FileStore) Load(_ context.Context) (Credential, error) {
	data, err := os.ReadFile(f.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to parse credentials from %s: %w", f.filePath, err)
	}
	return cred, nil
}

func (f *FileStore) Save(_ context.Context, cred Credential) error {
	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	// Write beside the target and rename so readers never see a torn file.
	tmp := f.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials to %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.filePath); err != nil {
		return fmt.Errorf("failed to move credentials into %s: %w", f.filePath, err)
	}

	logger.Get().Debug().Str("path", f.filePath).Msg("Saved credentials")
	return nil
}

func (f *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(f.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials file %s: %w", f.filePath, err)
	}
	return nil
}

func (f *FileStore) Name() string {
	return fmt.Sprintf("FileStore(%s)", f.filePath)
}
