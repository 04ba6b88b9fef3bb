// Package redis provides a branch.Cache shared by every engine instance
// that points at the same redis server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/id"
)

// DefaultPrefix namespaces branch keys.
const DefaultPrefix = "billbook:branch:"

var _ branch.Cache = (*Cache)(nil)

// Cache stores branches as JSON under prefix+branchID.
type Cache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// New returns a Cache. A zero ttl keeps entries until invalidated.
func New(client *goredis.Client, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{client: client, prefix: DefaultPrefix, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get implements branch.Cache. A missing key is a miss, not an error.
func (c *Cache) Get(ctx context.Context, branchID id.BranchID) (*branch.Branch, bool, error) {
	data, err := c.client.Get(ctx, c.key(branchID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("billbook/redis: get branch: %w", err)
	}

	var b branch.Branch
	if err := json.Unmarshal(data, &b); err != nil {
		// A record written by an incompatible version is treated as a miss.
		return nil, false, nil
	}
	return &b, true, nil
}

// Set implements branch.Cache.
func (c *Cache) Set(ctx context.Context, b *branch.Branch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("billbook/redis: encode branch: %w", err)
	}
	if err := c.client.Set(ctx, c.key(b.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("billbook/redis: set branch: %w", err)
	}
	return nil
}

// Invalidate implements branch.Cache.
func (c *Cache) Invalidate(ctx context.Context, branchID id.BranchID) error {
	if err := c.client.Del(ctx, c.key(branchID)).Err(); err != nil {
		return fmt.Errorf("billbook/redis: invalidate branch: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) key(branchID id.BranchID) string {
	return c.prefix + branchID.String()
}
