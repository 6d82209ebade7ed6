package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cellbus"

// Breaker state gauge values.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// Metrics holds the process-wide cellbus metrics.
type Metrics struct {
	// Dispatch
	DispatchCalls    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec
	BreakerRejected  *prometheus.CounterVec

	// Registry
	RegistryResolves  *prometheus.CounterVec
	RegistryPublishes *prometheus.CounterVec
	ChannelUpdates    *prometheus.CounterVec

	// Composition
	TissueExecutions *prometheus.CounterVec
	TissueDuration   *prometheus.HistogramVec

	HealthCheckStatus *prometheus.GaugeVec
	NATSConnected     prometheus.Gauge
}

// NewMetrics creates the core metric set. Register it with NewMetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		DispatchCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "calls_total",
				Help:      "Remote cell invocations by cell, action and outcome",
			},
			[]string{"cell", "action", "outcome"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Remote cell invocation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"cell", "action"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "breaker",
				Name:      "state",
				Help:      "Circuit breaker state per cell (0=closed, 1=half-open, 2=open)",
			},
			[]string{"cell"},
		),
		BreakerRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "breaker",
				Name:      "rejected_total",
				Help:      "Calls rejected without a transport attempt because the circuit was open",
			},
			[]string{"cell"},
		),
		RegistryResolves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "resolves_total",
				Help:      "Cell resolutions by channel and source (cache, store, error)",
			},
			[]string{"channel", "source"},
		),
		RegistryPublishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "publishes_total",
				Help:      "Manifest publications by sector",
			},
			[]string{"sector"},
		),
		ChannelUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "channel_updates_total",
				Help:      "Channel alias redirections",
			},
			[]string{"channel"},
		),
		TissueExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "composition",
				Name:      "executions_total",
				Help:      "Tissue executions by tissue and outcome",
			},
			[]string{"tissue", "outcome"},
		),
		TissueDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "composition",
				Name:      "duration_seconds",
				Help:      "Tissue execution latency",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tissue"},
		),
		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health status per component (0=unhealthy, 1=degraded, 2=healthy)",
			},
			[]string{"component"},
		),
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DispatchCalls,
		m.DispatchDuration,
		m.BreakerState,
		m.BreakerRejected,
		m.RegistryResolves,
		m.RegistryPublishes,
		m.ChannelUpdates,
		m.TissueExecutions,
		m.TissueDuration,
		m.HealthCheckStatus,
		m.NATSConnected,
	}
}

// RecordDispatch records one remote call.
func (m *Metrics) RecordDispatch(cell, action, outcome string, d time.Duration) {
	m.DispatchCalls.WithLabelValues(cell, action, outcome).Inc()
	m.DispatchDuration.WithLabelValues(cell, action).Observe(d.Seconds())
}

// RecordTissue records one tissue execution.
func (m *Metrics) RecordTissue(tissue string, success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.TissueExecutions.WithLabelValues(tissue, outcome).Inc()
	m.TissueDuration.WithLabelValues(tissue).Observe(d.Seconds())
}

// SetBreakerState publishes a breaker gauge value.
func (m *Metrics) SetBreakerState(cell string, state int) {
	m.BreakerState.WithLabelValues(cell).Set(float64(state))
}

// RecordHealthCheck publishes a health gauge value.
func (m *Metrics) RecordHealthCheck(component string, healthy, degraded bool) {
	v := 0.0
	switch {
	case healthy:
		v = 2
	case degraded:
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

// RecordNATSStatus publishes the NATS connection gauge.
func (m *Metrics) RecordNATSStatus(connected bool) {
	if connected {
		m.NATSConnected.Set(1)
	} else {
		m.NATSConnected.Set(0)
	}
}
