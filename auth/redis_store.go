package auth

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore is a durable, shared Store backed by Redis, for deployments
// running more than one bridge instance against the same token allow-list.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore. prefix defaults to "mcpbridge:" if
// empty, keeping keys namespaced from other uses of the same Redis
// instance, per the teacher's auth store convention.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mcpbridge:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + "token:" + token
}

func (s *RedisStore) Allowed(ctx context.Context, token string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Put(ctx context.Context, token string) error {
	return s.rdb.Set(ctx, s.key(token), "1", 0).Err()
}

func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, s.key(token)).Err()
}

var _ Store = (*RedisStore)(nil)
