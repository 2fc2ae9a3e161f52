package dispatch

import (
	"context"
	"sync"
	"time"

	id "chaintrail/pkg/domain"
)

type memoryEntry struct {
	role      id.Role
	expiresAt time.Time
}

// InMemoryRoleStore is the development and test backend for role selections.
type InMemoryRoleStore struct {
	mu      sync.RWMutex
	entries map[id.Address]memoryEntry
	ttl     time.Duration
	clock   func() time.Time
}

func NewInMemoryRoleStore(ttl time.Duration) *InMemoryRoleStore {
	return &InMemoryRoleStore{
		entries: make(map[id.Address]memoryEntry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

func (s *InMemoryRoleStore) Set(_ context.Context, caller id.Address, role id.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[caller] = memoryEntry{role: role, expiresAt: s.clock().Add(s.ttl)}
	return nil
}

func (s *InMemoryRoleStore) Get(_ context.Context, caller id.Address) (id.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[caller]
	if !ok || s.clock().After(entry.expiresAt) {
		return id.RoleUnknown, nil
	}
	return entry.role, nil
}
