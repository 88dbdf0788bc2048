package cache

import (
	"context"
	"sync"
)

// MemoryStore implements Store with a process-local map.
// This is suitable for single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Get retrieves the entry for key.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.entries[key], nil
}

// Set stores the entry, overwriting an expired or fresh predecessor alike.
func (s *MemoryStore) Set(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Key] = entry
	return nil
}

// Clear drops every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
