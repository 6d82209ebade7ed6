// Package retry runs an operation with exponential backoff.
//
// Three presets cover the cases cellbus needs:
//
//   - DefaultConfig: general network calls
//   - Conflicts: compare-and-swap loops on the KV store (registry metadata
//     write-back, channel updates)
//   - Startup: waiting for NATS to accept connections
//
// Errors wrapped with Permanent end the loop at once. Config.Retryable narrows
// retries further, e.g. to errors.IsTransient:
//
//	cfg := retry.DefaultConfig()
//	cfg.Retryable = errors.IsTransient
//	err := retry.Do(ctx, cfg, func() error {
//	    return store.Put(ctx, key, data)
//	})
package retry
