package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docintel/pkg/models"
)

const redisKeyPrefix = "docintel:recognition:"

// RedisStore persists recognition results in Redis so cache hits survive
// process restarts and are shared across instances. SET semantics give the
// last-write-wins behavior the cache contract asks for.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // zero = no expiry
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	const op = "NewRedisStore"

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to connect to redis at %s: %w", op, cfg.Addr, err)
	}

	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

// NewRedisStoreWithClient creates a store with an explicit client (for testing).
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, fingerprint string) (*models.RecognitionResult, error) {
	const op = "RedisStore.Get"

	data, err := s.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result models.RecognitionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%s: corrupt cache entry for %s: %w", op, fingerprint, err)
	}
	return &result, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, fingerprint string, result *models.RecognitionResult) error {
	const op = "RedisStore.Put"

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+fingerprint, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
