package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	bundle    *Bundle
	expiresAt time.Time
}

// MemoryStore is an in-process bundle cache with lazy TTL expiry. It is the
// fallback when no Redis address is configured; entries do not survive
// restarts and are not shared across replicas.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Bundle, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// replaced the entry since we released the read lock.
		if current, still := s.entries[key]; still && time.Now().After(current.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.bundle, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, bundle *Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{
		bundle:    bundle,
		expiresAt: time.Now().Add(s.ttl),
	}
	slog.Debug("Cached pipeline result", "cache_key", key, "ttl", s.ttl)
	return nil
}

// Len reports the number of entries currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
