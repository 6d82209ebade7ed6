package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ValidationError reports a malformed manifest, tissue definition or payload.
type ValidationError struct {
	Subject string // what was being validated, e.g. "manifest", "tissue"
	Field   string // offending field, empty when not attributable
	Reason  string
	Err     error // optional underlying cause
}

// NewValidationError builds a ValidationError for subject.field.
func NewValidationError(subject, field, reason string) *ValidationError {
	return &ValidationError{Subject: subject, Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Subject != "" {
		b.WriteString(" for ")
		b.WriteString(e.Subject)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFound kinds.
const (
	KindCell    = "cell"
	KindChannel = "channel"
	KindAction  = "action"
	KindTissue  = "tissue"
	KindOrgan   = "organ"
)

// NotFoundError reports a permanently absent cell, channel, action, tissue or organ.
type NotFoundError struct {
	Kind string
	ID   string
}

// NewNotFound builds a NotFoundError.
func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrKeyNotFound) match any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrKeyNotFound
}

// ServiceUnavailableError is returned when the circuit breaker for a target is open.
type ServiceUnavailableError struct {
	Target     string
	RetryAfter time.Duration
}

func (e *ServiceUnavailableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("service unavailable: circuit open for %s (retry after %s)", e.Target, e.RetryAfter)
	}
	return fmt.Sprintf("service unavailable: circuit open for %s", e.Target)
}

func (e *ServiceUnavailableError) Unwrap() error { return ErrCircuitOpen }

// RemoteCallError is a non-success response or a transport failure while
// invoking an action on a cell. StatusCode is zero for transport failures.
type RemoteCallError struct {
	CellID     string
	Action     string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteCallError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("remote call %s.%s failed with status %d: %s", e.CellID, e.Action, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("remote call %s.%s failed with status %d", e.CellID, e.Action, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("remote call %s.%s failed: %v", e.CellID, e.Action, e.Err)
	default:
		return fmt.Sprintf("remote call %s.%s failed", e.CellID, e.Action)
	}
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the call could succeed.
func (e *RemoteCallError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// CompositionStepError wraps the failure of one tissue step.
type CompositionStepError struct {
	TissueID string
	StepID   string
	Err      error
}

func (e *CompositionStepError) Error() string {
	return fmt.Sprintf("tissue %s failed at step %s: %v", e.TissueID, e.StepID, e.Err)
}

func (e *CompositionStepError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsServiceUnavailable reports whether err is (or wraps) a ServiceUnavailableError.
func IsServiceUnavailable(err error) bool {
	var su *ServiceUnavailableError
	return errors.As(err, &su)
}

// IsRemoteCall reports whether err is (or wraps) a RemoteCallError.
func IsRemoteCall(err error) bool {
	var rc *RemoteCallError
	return errors.As(err, &rc)
}

// IsStorageUnavailable reports whether err is an infrastructure storage failure.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
