package store

import (
	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps values in process memory. Values never expire.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(key string) (string, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores value under key.
func (m *MemoryStore) Set(key, value string) error {
	m.c.Set(key, value, gocache.NoExpiration)
	return nil
}

// Delete removes key. Missing keys are not an error.
func (m *MemoryStore) Delete(key string) error {
	m.c.Delete(key)
	return nil
}

// Clear removes every key.
func (m *MemoryStore) Clear() error {
	m.c.Flush()
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	return m.c.ItemCount()
}
