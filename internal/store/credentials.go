package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoomsync/backend/internal/models"
)

// Credentials holds one OAuth token set per provider.
type Credentials interface {
	// Get returns ErrNotFound when nothing was stored for provider.
	Get(ctx context.Context, provider string) (*models.Credential, error)
	// Put replaces the credential of c.Provider.
	Put(ctx context.Context, c *models.Credential) error
}

// MemoryCredentials is an in-process Credentials store.
type MemoryCredentials struct {
	mu    sync.RWMutex
	items map[string]models.Credential
}

// NewMemoryCredentials returns an empty credential store.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{items: make(map[string]models.Credential)}
}

// Get implements Credentials.
func (m *MemoryCredentials) Get(_ context.Context, provider string) (*models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.items[provider]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", provider, ErrNotFound)
	}
	return &c, nil
}

// Put implements Credentials.
func (m *MemoryCredentials) Put(_ context.Context, c *models.Credential) error {
	c.UpdatedAt = time.Now()
	m.mu.Lock()
	m.items[c.Provider] = *c
	m.mu.Unlock()
	return nil
}
