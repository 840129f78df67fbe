// Package cache provides a scoped, generic in-memory cache with per-entry
// expiry. Instances are constructed and injected into the components that
// need them (authorization state, dynamic client registrations), so their
// lifecycle and test isolation stay controllable. There is no package-level
// shared cache.
package cache

import (
	"sync"
	"time"
)

// Cache is a thread-safe TTL cache. Entries expire ttl after they were set;
// a background goroutine evicts expired entries periodically until Stop is
// called.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]

	ttl         time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New creates a cache whose entries expire after ttl. cleanupInterval
// controls how often expired entries are evicted in the background; reads
// never return expired values regardless of the interval.
func New[K comparable, V any](ttl, cleanupInterval time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		entries:     make(map[K]entry[V]),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}

	go c.cleanupLoop(cleanupInterval)

	return c
}

// Set stores value under key, resetting its expiry to now+ttl.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Get returns the unexpired value for key, if any.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Take returns the unexpired value for key and removes it in the same
// critical section. This is the single-use consume used for OAuth
// authorization state: two concurrent callers can never both receive the
// same value.
func (c *Cache[K, V]) Take(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	delete(c.entries, key)
	return e.value, true
}

// Delete removes key from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries, including not-yet-evicted expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stop terminates the background cleanup goroutine. Safe to call multiple
// times.
func (c *Cache[K, V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

func (c *Cache[K, V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache[K, V]) cleanup() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
