package cache

import (
	"context"
	"sync"

	"github.com/hyperjump/awase/internal/m2"
)

// MemoryStore is an in-memory content-keyed store, used in tests and by the
// serve mode for ad-hoc sentence pairs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]m2.Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]m2.Entry)}
}

// Key is content-derived; the system name is irrelevant.
func (s *MemoryStore) Key(system string, source, hypothesis []string) string {
	return ContentKey(source, hypothesis)
}

// Get returns the stored entries for key if present.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]m2.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.entries[key]
	return entries, ok, nil
}

// Put stores a copy of entries, publishing it in one step under the lock.
func (s *MemoryStore) Put(ctx context.Context, key string, entries []m2.Entry) error {
	value := make([]m2.Entry, len(entries))
	copy(value, entries)
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
	return nil
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
