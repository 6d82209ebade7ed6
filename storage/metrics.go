package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/handylife-debug/webwaka-main-sub008/metric"
)

// Metrics records per-operation counts, latency and errors for one bucket.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ops     *prometheus.CounterVec
	errors  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics registers storage metrics for backend/bucket. A nil registry
// disables metrics.
func NewMetrics(registry metric.MetricsRegistrar, backend, bucket string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"backend": backend, "bucket": bucket}
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "cellbus",
			Subsystem:   "storage",
			Name:        "operations_total",
			Help:        "Total number of storage operations",
			ConstLabels: labels,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "cellbus",
			Subsystem:   "storage",
			Name:        "errors_total",
			Help:        "Total number of failed storage operations",
			ConstLabels: labels,
		}, []string{"operation"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "cellbus",
			Subsystem:   "storage",
			Name:        "operation_duration_seconds",
			Help:        "Storage operation duration in seconds",
			ConstLabels: labels,
			Buckets:     []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}

	owner := backend + "." + bucket
	if err := registry.RegisterCounterVec(owner, "storage_operations", m.ops); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(owner, "storage_errors", m.errors); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(owner, "storage_latency", m.latency); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe records one operation started at start. Not-found reads are not
// counted as errors.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(operation).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil && !isNotFound(err) {
		m.errors.WithLabelValues(operation).Inc()
	}
}
