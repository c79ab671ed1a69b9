package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voucherly/redemption-service/internal/domain"
)

// Store implements ports.CacheStore on Redis. It backs idempotency entries
// and short-code claims; both are TTL-bound and tolerate loss (idempotency
// fails open, codes are reissued).
type Store struct {
	client *redis.Client
}

// NewStore creates a Redis-backed cache store.
func NewStore(addr, password string, db int) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: client}
}

// NewStoreWithClient wraps an existing client (tests, sentinel setups).
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get returns the value for key, or domain.ErrCacheMiss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, domain.WrapError(domain.ErrorCodeCacheUnavailable, "redis get", err)
	}
	return val, nil
}

// Set stores the value under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrorCodeCacheUnavailable, "redis set", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return domain.WrapError(domain.ErrorCodeCacheUnavailable, "redis del", err)
	}
	return nil
}

// Ping checks connectivity for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
