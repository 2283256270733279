package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	durableKeyPrefix     = "autopo:"
	durableScanBatchSize = 100
)

// DurableStore is the key-value store that survives process restarts.
// The retraining service keeps its state here.
type DurableStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Reset(ctx context.Context) error
}

type redisDurableStore struct {
	client *redis.Client
}

type memoryDurableStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewDurableStore returns a Redis-backed store when caching is enabled and an
// in-process store otherwise.
func NewDurableStore(cfg config.CacheConfig) (DurableStore, error) {
	if !cfg.Enabled {
		return NewMemoryDurableStore(), nil
	}

	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisDurableStore{client: client}, nil
}

func NewMemoryDurableStore() DurableStore {
	return &memoryDurableStore{data: make(map[string][]byte)}
}

func (s *redisDurableStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.client.Get(ctx, durableKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return payload, true, nil
}

func (s *redisDurableStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, durableKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *redisDurableStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, durableKeyPrefix+key).Err()
}

func (s *redisDurableStore) Reset(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, s.client, durableKeyPrefix, durableScanBatchSize)
}

func (s *memoryDurableStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *memoryDurableStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memoryDurableStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memoryDurableStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}
