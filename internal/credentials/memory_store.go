package credentials

import (
	"context"
	"sync"
)

// MemoryStore keeps the credential in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	cred  Credential
	saved bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.saved {
		return Credential{}, ErrNotFound
	}
	return m.cred, nil
}

func (m *MemoryStore) Save(_ context.Context, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = cred
	m.saved = true
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = Credential{}
	m.saved = false
	return nil
}

func (m *MemoryStore) Name() string {
	return "MemoryStore"
}
