package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"docintel/pkg/models"
)

// MemoryStore keeps recognition results in process memory. It is the default
// store when no Redis address is configured, and the store tests run against.
type MemoryStore struct {
	entries *gocache.Cache
}

// NewMemoryStore creates an in-memory store. A zero TTL means entries never
// expire.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryStore{
		entries: gocache.New(ttl, 10*time.Minute),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, fingerprint string) (*models.RecognitionResult, error) {
	value, found := s.entries.Get(fingerprint)
	if !found {
		return nil, nil
	}
	result, ok := value.(*models.RecognitionResult)
	if !ok {
		return nil, nil
	}
	// Hand out a copy so callers cannot mutate the cached entry.
	return result.Clone(), nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, fingerprint string, result *models.RecognitionResult) error {
	s.entries.SetDefault(fingerprint, result.Clone())
	return nil
}
