package composition

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/handylife-debug/webwaka-main-sub008/metric"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore persists registered tissues.
func WithStore(s Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithHistorySize bounds the results kept per tissue. Default 100.
func WithHistorySize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historySize = n
		}
	}
}

// WithHealthWindow sets how many recent results TissueHealth inspects.
// Default 10.
func WithHealthWindow(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.healthWindow = n
		}
	}
}

// WithMetrics records tissue executions.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithLogger sets the logger. Nil keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces the execution id generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// ExecuteOption configures one ExecuteTissue call.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	timeout     time.Duration
	executionID string
}

// WithTimeout bounds the whole run.
func WithTimeout(d time.Duration) ExecuteOption {
	return func(c *executeConfig) { c.timeout = d }
}

// WithExecutionID sets the execution id instead of generating one.
func WithExecutionID(id string) ExecuteOption {
	return func(c *executeConfig) { c.executionID = id }
}
