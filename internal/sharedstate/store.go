// Package sharedstate provides an in-process scratch store shared across
// pipeline runs for best-effort memoization. No transactional semantics:
// values may be overwritten or missing at any time.
package sharedstate

import "sync"

// Store is a concurrent key/value scratch space. Lifetime equals the
// orchestrator's lifetime.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Len() int
}

// MemoryStore is a mutex-guarded in-memory Store implementation.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]any)}
}

// Get returns the value for key, with ok false if absent.
func (s *MemoryStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Set stores value under key, overwriting any existing value.
func (s *MemoryStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

// Delete removes key. No-op if absent.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
