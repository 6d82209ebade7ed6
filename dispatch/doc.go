// Package dispatch invokes actions on cells by id.
//
// A Bus resolves the cell through the registry on its default channel, gates
// the call with a per-cell circuit breaker and hands the request to a
// Transport. HTTPTransport posts JSON to {endpoint}/{action}; NATSTransport
// uses request/reply on {subject-prefix}.{action}; SchemeTransport picks one
// by the endpoint scheme.
//
//	transport := dispatch.NewSchemeTransport().
//	    Register("http", dispatch.NewHTTPTransport(nil, 30*time.Second)).
//	    Register("nats", dispatch.NewNATSTransport(natsClient))
//	bus, err := dispatch.NewBus(reg, transport,
//	    dispatch.WithBreakerSettings(breaker.DefaultSettings()),
//	)
//	out, err := bus.Call(ctx, "finance/tax", "calculate", map[string]any{"amount": 100})
//
// Errors are typed: an open breaker yields errors.ServiceUnavailableError,
// a non-2xx reply or transport failure errors.RemoteCallError, an unknown
// cell, channel or action errors.NotFoundError. Only failures after the
// request is built count against the breaker: resolve errors, unknown actions
// and invalid payloads leave it untouched. BatchCall and HealthCheck swallow
// errors.
package dispatch
