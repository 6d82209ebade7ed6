package cache

import (
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/metric"
)

// Option configures a cache.
type Option[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	metricsReg      metric.MetricsRegistrar
	metricsPrefix   string
	evictCallback   EvictCallback[V]
	cleanupInterval time.Duration
	now             func() time.Time
}

// WithMetrics exports the cache statistics as Prometheus metrics labelled
// with prefix. A nil registry or empty prefix disables export.
func WithMetrics[V any](registry metric.MetricsRegistrar, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback is called for entries removed by expiry, Delete,
// DeletePrefix or Clear.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

// WithCleanupInterval sets how often expired entries are swept. Values <= 0 are ignored.
func WithCleanupInterval[V any](interval time.Duration) Option[V] {
	return func(opts *cacheOptions[V]) {
		if interval > 0 {
			opts.cleanupInterval = interval
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(opts *cacheOptions[V]) {
		if now != nil {
			opts.now = now
		}
	}
}

func applyOptions[V any](ttl time.Duration, options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{
		cleanupInterval: ttl,
		now:             time.Now,
	}
	if opts.cleanupInterval <= 0 || opts.cleanupInterval > time.Minute {
		opts.cleanupInterval = time.Minute
	}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
