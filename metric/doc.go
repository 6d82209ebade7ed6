// Package metric provides the Prometheus registry used by cellbus.
//
// A MetricsRegistry owns a private prometheus.Registry (never the global
// default) holding the core metrics plus whatever components register on top:
//
//   - dispatch: calls_total{cell,action,outcome}, duration_seconds{cell,action}
//   - breaker: state{cell}, rejected_total{cell}
//   - registry: resolves_total{channel,source}, publishes_total{sector},
//     channel_updates_total{channel}
//   - composition: executions_total{tissue,outcome}, duration_seconds{tissue}
//   - health and NATS connection gauges
//
// Components register their own metrics through MetricsRegistrar, keyed by
// owner and metric name so duplicates are reported as invalid errors rather
// than panics:
//
//	reg := metric.NewMetricsRegistry()
//	if err := reg.RegisterCounter("registry-cache", "cache_hits", hits); err != nil {
//	    return err
//	}
//	mux.Handle("/metrics", reg.Handler())
package metric
