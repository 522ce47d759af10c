package cache

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound means the key is absent or its TTL elapsed.
var ErrNotFound = errors.New("cache: key not found")

// Store is a keyed, TTL-expiring store for short-lived secrets such as
// penny-drop verification codes. Backing it with Redis instead of process
// memory means codes survive restarts and are shared across instances.
type Store struct {
	rdb *redis.Client
}

// RedisAddr resolves the Redis address the same way the alerts queue does.
func RedisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		port := os.Getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		return host + ":" + port
	}
	addr := "redis:6379"
	if os.Getenv("RUN_LOCAL") == "true" {
		addr = "127.0.0.1:6379"
	}
	return addr
}

func New(addr string) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (s *Store) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
