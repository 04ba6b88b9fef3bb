package branch

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/billbook/id"
)

// Cache holds read-mostly branch records between store lookups. Writers
// must call Invalidate after changing a branch.
type Cache interface {
	Get(ctx context.Context, branchID id.BranchID) (*Branch, bool, error)
	Set(ctx context.Context, b *Branch) error
	Invalidate(ctx context.Context, branchID id.BranchID) error
}

type cacheEntry struct {
	branch  Branch
	expires time.Time
}

// MemoryCache is an in-process Cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache returns a MemoryCache. A non-positive ttl keeps entries
// until they are invalidated.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached branch.
func (c *MemoryCache) Get(_ context.Context, branchID id.BranchID) (*Branch, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[branchID.String()]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, branchID.String())
		c.mu.Unlock()
		return nil, false, nil
	}
	b := e.branch
	return &b, true, nil
}

// Set stores a copy of b.
func (c *MemoryCache) Set(_ context.Context, b *Branch) error {
	e := cacheEntry{branch: *b}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[b.ID.String()] = e
	c.mu.Unlock()
	return nil
}

// Invalidate drops the entry for branchID.
func (c *MemoryCache) Invalidate(_ context.Context, branchID id.BranchID) error {
	c.mu.Lock()
	delete(c.entries, branchID.String())
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
