//go:build js && wasm

package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syumai/workers/cloudflare/kv"

	"github.com/dvcrn/storefront-api-proxy/internal/logger"
)

const (
	kvNamespace = "storefront_api_proxy_kv"
	kvKey       = "storefront_credential"
)

// KVStore persists the credential in Cloudflare Workers KV. The namespace
// binding is configured in wrangler.toml.
type KVStore struct {
	kvStore *kv.Namespace
}

// NewKVStore binds the KV namespace.
func NewKVStore() (*KVStore, error) {
	kvStore, err := kv.NewNamespace(kvNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &KVStore{kvStore: kvStore}, nil
}

func (k *KVStore) Load(_ context.Context) (Credential, error) {
	credsJSON, err := k.kvStore.GetString(kvKey, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to get credentials from KV: %w", err)
	}
	if credsJSON == "" {
		return Credential{}, ErrNotFound
	}

	var cred Credential
	if err := json.Unmarshal([]byte(credsJSON), &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to parse credentials JSON: %w", err)
	}
	return cred, nil
}

func (k *KVStore) Save(_ context.Context, cred Credential) error {
	credsJSON, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := k.kvStore.PutString(kvKey, string(credsJSON), nil); err != nil {
		return fmt.Errorf("failed to store credentials in KV: %w", err)
	}

	logger.Get().Debug().Msg("Saved credentials to Cloudflare KV")
	return nil
}

func (k *KVStore) Clear(_ context.Context) error {
	if err := k.kvStore.Delete(kvKey); err != nil {
		return fmt.Errorf("failed to delete credentials from KV: %w", err)
	}
	return nil
}

func (k *KVStore) Name() string {
	return "KVStore"
}
