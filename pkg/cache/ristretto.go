package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// Cache is a typed TTL cache backed by Ristretto. Every entry costs 1, so
// MaxCost bounds the number of items.
type Cache[V any] struct {
	name   string
	cache  *ristretto.Cache
	logger *zap.Logger
}

// Config holds configuration for a cache.
type Config struct {
	Name        string // metrics label
	NumCounters int64  // keys tracked for admission, ~10x max items
	MaxCost     int64
	BufferItems int64
	Logger      *zap.Logger
}

// New creates a Ristretto-backed cache.
func New[V any](cfg *Config) (*Cache[V], error) {
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &Cache[V]{
		name:   cfg.Name,
		cache:  rc,
		logger: cfg.Logger,
	}, nil
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	raw, found := c.cache.Get(key)
	if !found {
		MissesTotal.WithLabelValues(c.name).Inc()
		return zero, false
	}

	value, ok := raw.(V)
	if !ok {
		MissesTotal.WithLabelValues(c.name).Inc()
		return zero, false
	}

	HitsTotal.WithLabelValues(c.name).Inc()
	return value, true
}

// Set stores value with a TTL. Writes are applied asynchronously; Ristretto
// may drop them under contention.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) bool {
	ok := c.cache.SetWithTTL(key, value, 1, ttl)
	if ok {
		SetsTotal.WithLabelValues(c.name).Inc()
	} else {
		c.logger.Debug("cache-set-dropped", zap.String("cache", c.name), zap.String("key", key))
	}
	return ok
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.cache.Del(key)
	DeletesTotal.WithLabelValues(c.name).Inc()
}

// Wait blocks until pending writes have been applied.
func (c *Cache[V]) Wait() {
	c.cache.Wait()
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.cache.Clear()
}

// Close releases the cache's goroutines.
func (c *Cache[V]) Close() {
	c.cache.Close()
}
