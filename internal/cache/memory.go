package cache

import (
	"context"
	"sync"
)

// MemoryKeyIndex is a process-local index for single-instance deployments and tests
type MemoryKeyIndex struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryKeyIndex() *MemoryKeyIndex {
	return &MemoryKeyIndex{entries: make(map[string]string)}
}

func (c *MemoryKeyIndex) Get(_ context.Context, namespace, keyID string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	userID, ok := c.entries[namespace+":"+keyID]
	return userID, ok, nil
}

func (c *MemoryKeyIndex) Set(_ context.Context, namespace, keyID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[namespace+":"+keyID] = userID
	return nil
}

// Len returns the number of cached entries
func (c *MemoryKeyIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
