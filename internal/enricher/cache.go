package enricher

import (
	"context"
	"sync"

	"wikiweird/internal/models"
)

// Cache stores enrichment results keyed by requested title. Put is last-writer-wins.
type Cache interface {
	Get(ctx context.Context, title string) (models.EnrichmentResult, bool, error)
	Put(ctx context.Context, result models.EnrichmentResult) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	entries map[string]models.EnrichmentResult
	mu      sync.RWMutex
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]models.EnrichmentResult)}
}

// Get returns the cached result for title.
func (c *MemoryCache) Get(_ context.Context, title string) (models.EnrichmentResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.entries[title]

	return r, ok, nil
}

// Put stores result under its Title.
func (c *MemoryCache) Put(_ context.Context, result models.EnrichmentResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[result.Title] = result

	return nil
}

// Len returns the number of cached titles.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
