package cache

import (
	"sync"
	"time"

	"github.com/drallgood/bookrequest/internal/logger"
)

// Cache stores values with a TTL. Keys are any comparable type.
type Cache[K comparable, V any] interface {
	// Set stores a value; a ttl <= 0 never expires
	Set(key K, value V, ttl time.Duration)
	// Get returns the value and whether a live entry was found
	Get(key K) (V, bool)
	Delete(key K)
	Clear()
}

// Clock returns the current time
type Clock func() time.Time

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type memoryCache[K comparable, V any] struct {
	items map[K]entry[V]
	mu    sync.RWMutex
	now   Clock
	log   *logger.Logger
}

// Option configures a memory cache
type Option func(*options)

type options struct {
	now Clock
}

// WithClock replaces time.Now as the source of the current time
func WithClock(now Clock) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache[K comparable, V any](log *logger.Logger, opts ...Option) Cache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &memoryCache[K, V]{
		items: make(map[K]entry[V]),
		now:   o.now,
		log:   log,
	}
}

func (c *memoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}

	c.log.Debug("Item added to cache", map[string]interface{}{
		"key":        key,
		"cache_size": len(c.items),
	})
}

func (c *memoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !found {
		return zero, false
	}
	if !item.expiresAt.IsZero() && !c.now().Before(item.expiresAt) {
		c.log.Debug("Cache item expired", map[string]interface{}{"key": key})
		c.mu.Lock()
		if current, ok := c.items[key]; ok && current.expiresAt.Equal(item.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

func (c *memoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *memoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]entry[V])
	c.log.Debug("Cache cleared")
}

// WithTTL returns a wrapper that applies ttl to every Set, ignoring the caller's value
func WithTTL[K comparable, V any](cache Cache[K, V], ttl time.Duration) Cache[K, V] {
	return &ttlWrapper[K, V]{cache: cache, ttl: ttl}
}

type ttlWrapper[K comparable, V any] struct {
	cache Cache[K, V]
	ttl   time.Duration
}

func (w *ttlWrapper[K, V]) Set(key K, value V, _ time.Duration) { w.cache.Set(key, value, w.ttl) }
func (w *ttlWrapper[K, V]) Get(key K) (V, bool)                 { return w.cache.Get(key) }
func (w *ttlWrapper[K, V]) Delete(key K)                        { w.cache.Delete(key) }
func (w *ttlWrapper[K, V]) Clear()                              { w.cache.Clear() }
