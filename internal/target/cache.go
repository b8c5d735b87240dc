package target

import (
	"context"
	"sync"
	"time"

	"github.com/sqltalk/sqltalk/internal/config"
	"github.com/sqltalk/sqltalk/internal/dsn"
)

// OpenFunc matches Open; the cache takes it as a seam for tests.
type OpenFunc func(ctx context.Context, cfg config.TargetConfig) (*Handle, error)

// Cache memoizes one target handle per parameter set. The handle is reused
// until its TTL elapses or the connection parameters change, then reopened.
type Cache struct {
	mu       sync.Mutex
	open     OpenFunc
	ttl      time.Duration
	now      func() time.Time
	handle   *Handle
	key      string
	openedAt time.Time
}

func NewCache(open OpenFunc, ttl time.Duration) *Cache {
	if open == nil {
		open = Open
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Cache{open: open, ttl: ttl, now: time.Now}
}

// Acquire returns the memoized handle for cfg, opening a fresh connection
// when none is cached, the cached one expired, or cfg changed.
func (c *Cache) Acquire(ctx context.Context, cfg config.TargetConfig) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := dsn.Fingerprint(ParamsFromConfig(cfg))
	if c.handle != nil && c.key == key && c.now().Sub(c.openedAt) < c.ttl {
		return c.handle, nil
	}

	if c.handle != nil {
		_ = c.handle.Close()
		c.handle = nil
	}

	handle, err := c.open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.handle = handle
	c.key = key
	c.openedAt = c.now()
	return handle, nil
}

// Close releases the cached handle, if any.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return nil
	}
	err := c.handle.Close()
	c.handle = nil
	c.key = ""
	return err
}
