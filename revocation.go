package auth

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// RevocationStore blacklists tokens until their natural expiry. Entries are
// write once per revocation event and expire on their own TTL; there is no
// delete path.
type RevocationStore interface {
	IsRevoked(ctx context.Context, key string) (bool, error)
	// Revoke is idempotent and a no-op for ttl <= 0: an already expired
	// token needs no tracking.
	Revoke(ctx context.Context, key string, ttl time.Duration) error
}

// RedisRevocationStore is the production backend
type RedisRevocationStore struct {
	client redis.UniversalClient
}

var _ RevocationStore = (*RedisRevocationStore)(nil)

func NewRedisRevocationStore(client redis.UniversalClient) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "revocation store lookup failed")
	}
	return n > 0, nil
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "revocation store write failed")
	}

	return nil
}

// MemoryRevocationStore keeps revocations in process memory. Meant for tests
// and single node development runs; production deployments want Redis.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

var _ RevocationStore = (*MemoryRevocationStore)(nil)

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		entries: make(map[string]time.Time),
	}
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	deadline, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if time.Now().After(deadline) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return false, nil
	}

	return true, nil
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	s.entries[key] = time.Now().Add(ttl)
	s.mu.Unlock()

	return nil
}

// Len reports the number of live entries, expired ones included until they
// are touched. Used by tests.
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
