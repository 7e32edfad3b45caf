// Package memory is a process-local store.Store used for tests and
// ephemeral runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vovakirdan/pianochat-server/internal/store"
)

// MemoryStore implements store.Store with a map.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]store.Profile
}

// New creates an empty store.
func New() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]store.Profile)}
}

// GetProfile retrieves a profile by identity.
func (s *MemoryStore) GetProfile(_ context.Context, identity string) (*store.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[identity]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

// SaveProfile stores a profile.
func (s *MemoryStore) SaveProfile(_ context.Context, identity string, p store.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.profiles[identity] = p
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
