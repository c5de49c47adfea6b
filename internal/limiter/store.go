package limiter

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CapacityStore records discovered or configured per-endpoint
// capacities. Get reports ok=false when no capacity has been recorded
// for url, letting the pool fall back to its static default.
type CapacityStore interface {
	Get(url string) (capacity int, ok bool)
	Set(url string, capacity int)
}

// MemStore is the default, single-process CapacityStore.
type MemStore struct {
	mu   sync.RWMutex
	caps map[string]int
}

func NewMemStore() *MemStore { return &MemStore{caps: make(map[string]int)} }

func (s *MemStore) Get(url string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.caps[url]
	return c, ok
}

func (s *MemStore) Set(url string, capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps[url] = capacity
}

// RedisStore shares discovered capacities across a fleet of federator
// processes. Values are stored as a hash under a single key so a deploy
// can inspect them with one HGETALL.
type RedisStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = "federator:slot-capacity"
	}
	return &RedisStore{rdb: rdb, key: key, ttl: ttl}
}

func (s *RedisStore) Get(url string) (int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := s.rdb.HGet(ctx, s.key, url).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *RedisStore) Set(url string, capacity int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.rdb.HSet(ctx, s.key, url, capacity).Err()
	if s.ttl > 0 {
		_ = s.rdb.Expire(ctx, s.key, s.ttl).Err()
	}
}
