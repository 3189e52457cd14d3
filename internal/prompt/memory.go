package prompt

import (
	"context"
	"sync"
)

// MemoryStore holds a prompt set in process memory. Used in tests and as the
// fallback when no prompt file is configured.
type MemoryStore struct {
	mu  sync.RWMutex
	set *PromptSet
}

// NewMemoryStore creates a store seeded with the given set, or the defaults
// when nil.
func NewMemoryStore(set *PromptSet) *MemoryStore {
	if set == nil {
		set = DefaultPromptSet()
	}
	return &MemoryStore{set: set}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (*PromptSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := *s.set
	return &copied, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, set *PromptSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *set
	s.set = &copied
	return nil
}
