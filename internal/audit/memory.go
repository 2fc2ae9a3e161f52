package audit

import (
	"context"
	"sync"

	id "chaintrail/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.Address][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.Address][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Actor] = append(s.entries[entry.Actor], entry)
	return nil
}

func (s *InMemoryStore) ListByActor(_ context.Context, actor id.Address) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries[actor]...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[id.Address][]Entry)
}
