package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a cache whose entries expire a fixed duration after they were set.
type TTL[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	items   map[string]ttlEntry[V]
	now     func() time.Time
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ Cache[int] = (*TTL[int])(nil)

// NewTTL creates a TTL cache and starts its sweeper, which stops when ctx is
// done or Close is called. A ttl <= 0 is rejected.
func NewTTL[V any](ctx context.Context, ttl time.Duration, options ...Option[V]) (*TTL[V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("ttl must be positive, got %s", ttl), "cache", "NewTTL", "validate ttl")
	}
	opts := applyOptions(ttl, options...)

	var m *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		m, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewTTL", "metrics registration")
		}
	}

	c := &TTL[V]{
		ttl:      ttl,
		items:    make(map[string]ttlEntry[V]),
		now:      opts.now,
		stats:    NewStatistics(),
		metrics:  m,
		evictFn:  opts.evictCallback,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.sweep(ctx, opts.cleanupInterval)
	return c, nil
}

// Get returns the value for key unless it is missing or expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		c.stats.Hit()
		if c.metrics != nil {
			c.metrics.hits.Inc()
		}
		return e.value, true
	}

	if ok {
		c.expire(key)
	}
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.misses.Inc()
	}
	var zero V
	return zero, false
}

func (c *TTL[V]) expire(key string) {
	c.mu.Lock()
	e, ok := c.items[key]
	if !ok || c.now().Before(e.expiresAt) {
		c.mu.Unlock()
		return
	}
	delete(c.items, key)
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Eviction()
	c.recordSize(size)
	if c.metrics != nil {
		c.metrics.evictions.Inc()
	}
	if c.evictFn != nil {
		c.evictFn(key, e.value)
	}
}

// Set stores value under key with a fresh expiry.
func (c *TTL[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, existed := c.items[key]
	c.items[key] = ttlEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.recordSize(size)
	if c.metrics != nil {
		c.metrics.sets.Inc()
	}
	return !existed, nil
}

// Delete removes key.
func (c *TTL[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	e, existed := c.items[key]
	if existed {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if !existed {
		return false, nil
	}
	c.stats.Delete()
	c.recordSize(size)
	if c.metrics != nil {
		c.metrics.deletes.Inc()
	}
	if c.evictFn != nil {
		c.evictFn(key, e.value)
	}
	return true, nil
}

// DeletePrefix removes all keys with the given prefix.
func (c *TTL[V]) DeletePrefix(prefix string) int {
	removed := make(map[string]V)

	c.mu.Lock()
	for k, e := range c.items {
		if strings.HasPrefix(k, prefix) {
			removed[k] = e.value
			delete(c.items, k)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	for k, v := range removed {
		c.stats.Delete()
		if c.metrics != nil {
			c.metrics.deletes.Inc()
		}
		if c.evictFn != nil {
			c.evictFn(k, v)
		}
	}
	c.recordSize(size)
	return len(removed)
}

// Clear removes all entries.
func (c *TTL[V]) Clear() error {
	c.mu.Lock()
	old := c.items
	c.items = make(map[string]ttlEntry[V])
	c.mu.Unlock()

	if c.evictFn != nil {
		for k, e := range old {
			c.evictFn(k, e.value)
		}
	}
	c.recordSize(0)
	return nil
}

// Size returns the number of stored entries, including expired ones not yet swept.
func (c *TTL[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns the unexpired keys.
func (c *TTL[V]) Keys() []string {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for k, e := range c.items {
		if now.Before(e.expiresAt) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Stats returns the live statistics.
func (c *TTL[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the sweeper. It is safe to call more than once.
func (c *TTL[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("cache: timeout waiting for sweeper to stop")
	}
}

func (c *TTL[V]) recordSize(size int) {
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.size.Set(float64(size))
	}
}

func (c *TTL[V]) sweep(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *TTL[V]) removeExpired() {
	now := c.now()
	expired := make(map[string]V)

	c.mu.Lock()
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			expired[k] = e.value
			delete(c.items, k)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	for k, v := range expired {
		c.stats.Eviction()
		if c.metrics != nil {
			c.metrics.evictions.Inc()
		}
		if c.evictFn != nil {
			c.evictFn(k, v)
		}
	}
	c.recordSize(size)
}
