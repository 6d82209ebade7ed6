package dispatch

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/handylife-debug/webwaka-main-sub008/breaker"
	"github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/metric"
	"github.com/handylife-debug/webwaka-main-sub008/schema"
)

// Option configures a Bus.
type Option func(*Bus) error

// WithBreakerSettings sets the settings of every per-cell breaker.
func WithBreakerSettings(s breaker.Settings) Option {
	return func(b *Bus) error {
		if err := s.Validate(); err != nil {
			return err
		}
		b.settings = s
		return nil
	}
}

// WithDefaultChannel sets the channel calls resolve on. Default "stable".
func WithDefaultChannel(channel string) Option {
	return func(b *Bus) error {
		if channel == "" {
			return errors.WrapInvalid(nil, "Bus", "WithDefaultChannel", "empty channel")
		}
		b.channel = channel
		return nil
	}
}

// WithBatchConcurrency bounds the calls BatchCall runs at once.
func WithBatchConcurrency(n int) Option {
	return func(b *Bus) error {
		if n <= 0 {
			return errors.WrapInvalid(nil, "Bus", "WithBatchConcurrency", "concurrency must be positive")
		}
		b.concurrency = n
		return nil
	}
}

// WithValidator validates payloads and responses against the cell schema.
// A nil validator keeps the default.
func WithValidator(v schema.Validator) Option {
	return func(b *Bus) error {
		if v == nil {
			return nil
		}
		b.validator = v
		return nil
	}
}

// WithMetrics records call outcomes and breaker states.
func WithMetrics(m *metric.Metrics) Option {
	return func(b *Bus) error {
		b.metrics = m
		return nil
	}
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bus) error {
		if t != nil {
			b.tracer = t
		}
		return nil
	}
}

// WithLogger sets the logger. Nil keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) error {
		if logger != nil {
			b.logger = logger
		}
		return nil
	}
}

// WithClock drives the breakers from now instead of time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) error {
		b.now = now
		return nil
	}
}
