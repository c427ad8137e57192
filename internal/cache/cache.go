package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a small TTL map. A zero TTL keeps entries for the life of the process.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]item[V]
	now   func() time.Time
}

func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]item[V]),
		now:   time.Now,
	}
}

func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it := item[V]{value: value}
	if ttl > 0 {
		it.expiresAt = c.now().Add(ttl)
	}
	c.items[key] = it
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	it, exists := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}
	if !it.expiresAt.IsZero() && c.now().After(it.expiresAt) {
		c.Delete(key)
		return zero, false
	}
	return it.value, true
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
