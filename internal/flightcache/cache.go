package flightcache

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes one value per key for its lifetime. Concurrent Get calls
// for a key that is not cached yet share a single load; the map lock is
// never held while a load runs.
type Cache[V any] struct {
	mu     sync.RWMutex
	values map[string]V
	group  singleflight.Group
	loads  atomic.Int64
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{values: make(map[string]V)}
}

// Get returns the cached value for key, calling load at most once per key.
func (c *Cache[V]) Get(key string, load func() V) V {
	if v, ok := c.Peek(key); ok {
		return v
	}
	res, _, _ := c.group.Do(key, func() (interface{}, error) {
		// A previous flight may have finished between Peek and Do.
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		c.loads.Add(1)
		v := load()
		c.mu.Lock()
		c.values[key] = v
		c.mu.Unlock()
		return v, nil
	})
	return res.(V)
}

// Peek returns the cached value without loading.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	return v, ok
}

// Len returns the number of cached keys.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Loads returns how many times a load function has been invoked.
func (c *Cache[V]) Loads() int64 {
	return c.loads.Load()
}
