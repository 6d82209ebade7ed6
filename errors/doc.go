// Package errors provides the error model for cellbus.
//
// # Classification
//
// Every error can be placed in one of three classes: Transient (temporary,
// retryable), Invalid (bad input, do not retry) and Fatal (stop processing).
// Components wrap foreign errors with context using the standard pattern
//
//	component.method: action failed: cause
//
// through Wrap, WrapTransient, WrapInvalid and WrapFatal. The classification
// helpers IsTransient, IsInvalid, IsFatal and Classify walk the wrap chain.
//
// # Taxonomy
//
// The registry, the dispatch bus and the orchestrator return typed errors:
//
//   - ValidationError: malformed manifest, tissue definition or payload
//   - NotFoundError: unknown cell, channel, action, tissue or organ
//   - ServiceUnavailableError: the circuit breaker for the target is open
//   - RemoteCallError: non-success response or transport failure, carrying
//     the cell id and action
//   - CompositionStepError: any of the above, wrapped with tissue and step id
//
// Storage backend failures are reported with ErrStorageUnavailable and are
// transient; they are never folded into NotFoundError.
//
// # Usage
//
//	res, err := bus.Call(ctx, "inventory/TaxAndFee", "calculate", payload)
//	switch {
//	case errors.IsServiceUnavailable(err):
//	    // circuit open, back off
//	case errors.IsNotFound(err):
//	    // unknown cell or channel
//	}
//
// Import the standard library under an alias when both are needed:
//
//	import (
//	    stderrors "errors"
//
//	    "github.com/handylife-debug/webwaka-main-sub008/errors"
//	)
package errors
