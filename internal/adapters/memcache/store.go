package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/pkg/timeutil"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is an in-memory ports.CacheStore for tests and single-node
// development. Expired entries are evicted lazily on read and by a
// background sweep.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	stopCh  chan struct{}
	once    sync.Once
}

// NewStore creates an in-memory store with a background eviction sweep.
func NewStore() *Store {
	s := &Store{
		entries: make(map[string]entry),
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop(time.Minute)
	return s
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := timeutil.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Get returns the value for key, or domain.ErrCacheMiss.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && timeutil.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, domain.ErrCacheMiss
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, nil
}

// Set stores the value under key. A zero TTL means no expiry.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = timeutil.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry{value: stored, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close stops the eviction sweep.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stopCh) })
}
