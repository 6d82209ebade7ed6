// Package cache provides a generic, thread-safe TTL cache.
//
// Entries expire a fixed duration after they were last set. Expired entries
// are dropped lazily on Get and periodically by a background sweeper that
// stops when the constructor's context ends or Close is called.
//
// Statistics are always collected. WithMetrics additionally exposes them as
// Prometheus metrics labelled by cache name:
//
//	resolved, err := cache.NewTTL[Resolution](ctx, 5*time.Minute,
//	    cache.WithMetrics[Resolution](metricsRegistry, "registry"))
//	if err != nil {
//	    return err
//	}
//	defer resolved.Close()
//
//	resolved.Set("inventory/TaxAndFee:stable", res)
//	resolved.DeletePrefix("inventory/TaxAndFee:") // invalidate every channel
//
// WithClock substitutes the time source so tests can move past expiry without
// sleeping.
package cache
