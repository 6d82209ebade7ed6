// Package breaker implements a per-target circuit breaker.
//
// The transitions are pure functions over a Snapshot so they can be tested
// without goroutines or clocks:
//
//	closed    --failures reach threshold-->  open
//	open      --cooldown elapsed, 1 trial--> half-open
//	half-open --trial succeeds-->            closed
//	half-open --trial fails-->               open (cooldown restarts)
//
// Breaker wraps a Snapshot with a mutex and a clock, and Call adds the call
// timeout race:
//
//	b := breaker.New("inventory/TaxAndFee", breaker.DefaultSettings())
//	out, err := breaker.Call(ctx, b, func(ctx context.Context) (map[string]any, error) {
//	    return transport.Invoke(ctx, req)
//	})
//	if errors.Is(err, breaker.ErrOpen) {
//	    // fail fast, nothing was sent
//	}
package breaker
