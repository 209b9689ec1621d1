// Package cache is the read-through layer in front of the query store.
// Failures never surface to callers: a broken cache degrades every lookup
// to a miss and every write to a no-op, with a warning.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds staleness when invalidation events are lost.
const DefaultTTL = 300 * time.Second

var ErrMiss = errors.New("cache: miss")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

type Cache struct {
	store  Store
	logger *slog.Logger
	ttl    time.Duration
}

func New(store Store, logger *slog.Logger) *Cache {
	return &Cache{store: store, logger: logger, ttl: DefaultTTL}
}

// Lookup reports whether key was found and decoded into dest.
func (c *Cache) Lookup(ctx context.Context, key string, dest any) bool {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache get failed, treating as miss", "key", key, "err", err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		c.logger.Warn("cache entry undecodable, treating as miss", "key", key, "err", err)
		return false
	}
	return true
}

func (c *Cache) Fill(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache fill encode failed", "key", key, "err", err)
		return
	}
	if err := c.store.SetWithTTL(ctx, key, string(raw), c.ttl); err != nil {
		c.logger.Warn("cache fill failed", "key", key, "err", err)
	}
}

func (c *Cache) Drop(ctx context.Context, keys ...string) {
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.logger.Warn("cache invalidation failed, entries expire by TTL", "keys", keys, "err", err)
	}
}

func BoardKey(boardID string) string { return "board:" + boardID }
func BoardsKey(userID string) string { return "boards:" + userID }
func TasksKey(boardID string) string { return "tasks:" + boardID }
