package registry

import (
	"log/slog"
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/metric"
)

// Option configures a Registry.
type Option func(*Registry) error

// WithCacheTTL sets how long resolutions are cached. Default 5m.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Registry) error {
		r.cacheTTL = ttl
		return nil
	}
}

// WithSigningKey enables HMAC manifest signing.
func WithSigningKey(key []byte) Option {
	return func(r *Registry) error {
		s, err := NewSigner(key)
		if err != nil {
			return err
		}
		r.signer = s
		return nil
	}
}

// WithEndpointBaseURL derives server endpoints as {base}/{sector}/{name}/{version}
// for publishes that do not name one.
func WithEndpointBaseURL(base string) Option {
	return func(r *Registry) error {
		r.endpointBase = base
		return nil
	}
}

// WithMetrics records resolves, publishes and channel moves.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Registry) error {
		r.metrics = m
		return nil
	}
}

// WithMetricsRegistry exports cache and write-back pool metrics.
func WithMetricsRegistry(reg metric.MetricsRegistrar) Option {
	return func(r *Registry) error {
		r.registrar = reg
		return nil
	}
}

// WithLogger sets the logger. Nil keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) error {
		r.now = now
		return nil
	}
}

// WithWriteBackQueue sizes the asynchronous metadata write-back pool.
func WithWriteBackQueue(workers, queueSize int) Option {
	return func(r *Registry) error {
		r.wbWorkers = workers
		r.wbQueue = queueSize
		return nil
	}
}
