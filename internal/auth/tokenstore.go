package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound indicates the key holds no live token.
var ErrTokenNotFound = errors.New("auth: token not found")

// TokenStore persists single-use and time-bounded tokens. Consume is the
// exactly-once primitive: under concurrent callers for the same key,
// precisely one receives the value and the rest get ErrTokenNotFound.
type TokenStore interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Consume(ctx context.Context, key string) ([]byte, error)
}

// RedisTokenStore implements TokenStore on redis. Expiry rides on key TTLs
// so stale tokens vanish without a sweep.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenStore constructs a store with the given key prefix.
func NewRedisTokenStore(client *redis.Client, prefix string) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: prefix}
}

func (s *RedisTokenStore) key(k string) string {
	return s.prefix + ":" + k
}

// Put stores the value under key with the given TTL.
func (s *RedisTokenStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

// Get returns the live value or ErrTokenNotFound.
func (s *RedisTokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return value, nil
}

// Delete removes the key. Missing keys are not an error.
func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Consume atomically reads and deletes the key via GETDEL.
func (s *RedisTokenStore) Consume(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.GetDel(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return value, nil
}

var _ TokenStore = (*RedisTokenStore)(nil)
