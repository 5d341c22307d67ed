// Package cache provides the in-process TTL cache layer fronting the store.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the configuration for a single cache.
type Config struct {
	// DefaultTTL is applied by Set; SetWithTTL overrides it per entry.
	DefaultTTL time.Duration
	// CleanupInterval is how often the janitor evicts expired entries.
	// Zero disables the janitor; entries are then evicted lazily on Get.
	CleanupInterval time.Duration
	// MaxItems caps the number of entries. Zero means unbounded.
	MaxItems int
	// OnEviction is invoked for every evicted entry, if set.
	OnEviction func(key string, value any)
}

type item struct {
	value     any
	expiresAt time.Time
}

// Cache is a goroutine-safe in-memory cache with per-entry expiry.
// A single instance serves every caller in the process; there is exactly one
// source of truth for each cached category.
type Cache struct {
	config Config

	data sync.Map
	size atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a cache and starts its cleanup janitor.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}

	c := &Cache{
		config: config,
		done:   make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop()
	}

	return c
}

// Get retrieves a value. Expired entries are evicted on access.
func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	raw, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	it := raw.(*item)

	// A stored entry without a value or expiry is an internal bug, not a
	// miss. Self-heal by evicting so the next access recomputes.
	if it.value == nil || it.expiresAt.IsZero() {
		slog.Error("cache invariant violation, evicting entry", "key", key)
		c.evict(key, it)
		return nil, false
	}

	if time.Now().After(it.expiresAt) {
		c.evict(key, it)
		return nil, false
	}
	return it.value, true
}

// Set stores a value with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, c.config.DefaultTTL)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Cache) SetWithTTL(_ context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	if c.config.MaxItems > 0 && c.size.Load() >= int64(c.config.MaxItems) {
		if _, exists := c.data.Load(key); !exists {
			c.evictOne()
		}
	}

	if _, loaded := c.data.Swap(key, &item{value: value, expiresAt: time.Now().Add(ttl)}); !loaded {
		c.size.Add(1)
	}
}

// Delete removes a single entry.
func (c *Cache) Delete(_ context.Context, key string) {
	if raw, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-1)
		if c.config.OnEviction != nil {
			c.config.OnEviction(key, raw.(*item).value)
		}
	}
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) {
	c.data.Range(func(key, _ any) bool {
		c.Delete(ctx, key.(string))
		return true
	})
}

// Size returns the number of stored entries.
func (c *Cache) Size() int64 {
	return c.size.Load()
}

// Close stops the cleanup janitor.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	return nil
}

func (c *Cache) evict(key string, it *item) {
	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-1)
		if c.config.OnEviction != nil {
			c.config.OnEviction(key, it.value)
		}
	}
}

// evictOne removes the entry closest to expiry to make room for a new one.
func (c *Cache) evictOne() {
	var victimKey string
	var victim *item
	c.data.Range(func(key, raw any) bool {
		it := raw.(*item)
		if victim == nil || it.expiresAt.Before(victim.expiresAt) {
			victimKey, victim = key.(string), it
		}
		return true
	})
	if victim != nil {
		c.evict(victimKey, victim)
	}
}

func (c *Cache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.data.Range(func(key, raw any) bool {
				it := raw.(*item)
				if now.After(it.expiresAt) {
					c.evict(key.(string), it)
				}
				return true
			})
		}
	}
}
