package repository

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

// RedisKVRepository is the persistent key-value collaborator backed by Redis.
// Missing keys surface as appErrors.ErrCacheMiss.
type RedisKVRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisKVRepository constructs a Redis key-value store that namespaces keys with prefix.
func NewRedisKVRepository(client *redis.Client, prefix string, logger *zap.Logger) *RedisKVRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisKVRepository{client: client, prefix: prefix, logger: logger}
}

// Get returns the raw string stored under key.
func (r *RedisKVRepository) Get(ctx context.Context, key string) (string, error) {
	if r.client == nil {
		return "", appErrors.ErrCacheMiss
	}
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", appErrors.ErrCacheMiss
		}
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key without expiry.
func (r *RedisKVRepository) Set(ctx context.Context, key, value string) error {
	if r.client == nil {
		return fmt.Errorf("redis set %s: client not configured", key)
	}
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key if present.
func (r *RedisKVRepository) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Keys lists keys (without prefix) matching pattern.
func (r *RedisKVRepository) Keys(ctx context.Context, pattern string) ([]string, error) {
	if r.client == nil {
		return nil, nil
	}
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(r.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	return keys, nil
}

// Close releases the underlying Redis connection if present.
func (r *RedisKVRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// MemoryKVRepository is a process-local key-value store.
type MemoryKVRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryKVRepository constructs an empty in-memory key-value store.
func NewMemoryKVRepository() *MemoryKVRepository {
	return &MemoryKVRepository{values: make(map[string]string)}
}

// Get returns the value for key or appErrors.ErrCacheMiss.
func (r *MemoryKVRepository) Get(_ context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[key]
	if !ok {
		return "", appErrors.ErrCacheMiss
	}
	return value, nil
}

// Set stores value under key.
func (r *MemoryKVRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

// Delete removes key.
func (r *MemoryKVRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
	return nil
}

// Keys lists keys matching a glob pattern, sorted.
func (r *MemoryKVRepository) Keys(_ context.Context, pattern string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	for key := range r.values {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("memory keys pattern %s: %w", pattern, err)
		}
		if ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
