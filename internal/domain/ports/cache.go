package ports

import (
	"context"
	"time"
)

// CacheStore is a generic key-value store with TTL. It backs idempotency
// entries and short-code lookups. Implementations return
// domain.ErrCacheMiss for absent keys; any other error means the store is
// unreachable, which callers degrade on per their own policy (idempotency
// fails open, short-code resolution fails the lookup).
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
