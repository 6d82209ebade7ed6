package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"circuit open", ErrCircuitOpen, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"invalid data", ErrInvalidData, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"service unavailable", &ServiceUnavailableError{Target: "a/b"}, true},
		{"remote 503", &RemoteCallError{CellID: "a/b", Action: "x", StatusCode: http.StatusServiceUnavailable}, true},
		{"remote 400", &RemoteCallError{CellID: "a/b", Action: "x", StatusCode: http.StatusBadRequest}, false},
		{"remote transport", &RemoteCallError{CellID: "a/b", Action: "x", Err: errors.New("refused")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err), "error: %v", test.err)
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(NewValidationError("manifest", "version", "required")))
	assert.True(t, IsInvalid(fmt.Errorf("outer: %w", ErrParsingFailed)))
	assert.False(t, IsInvalid(ErrStorageUnavailable))
	assert.False(t, IsInvalid(nil))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(NewValidationError("tissue", "steps", "empty")))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")

	err := Wrap(base, "Registry", "ResolveCell", "load entry")
	require.Error(t, err)
	assert.Equal(t, "Registry.ResolveCell: load entry failed: boom", err.Error())
	assert.ErrorIs(t, err, base)

	assert.NoError(t, Wrap(nil, "a", "b", "c"))
	assert.NoError(t, WrapTransient(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	transient := WrapTransient(base, "kv", "Get", "read")
	assert.True(t, IsTransient(transient))
	assert.ErrorIs(t, transient, base)

	fatal := WrapFatal(base, "kv", "Get", "decode")
	assert.True(t, IsFatal(fatal))

	invalid := WrapInvalid(nil, "cache", "Set", "empty key")
	require.Error(t, invalid)
	assert.True(t, IsInvalid(invalid))
	assert.ErrorIs(t, invalid, ErrInvalidData)

	var ce *ClassifiedError
	require.ErrorAs(t, invalid, &ce)
	assert.Equal(t, "cache", ce.Component)
	assert.Equal(t, "Set", ce.Operation)
}

func TestStorageUnavailable(t *testing.T) {
	cause := errors.New("nats: timeout")
	err := StorageUnavailable(cause, "Registry", "ResolveCell", "load entry")

	assert.True(t, IsStorageUnavailable(err))
	assert.True(t, IsTransient(err))
	assert.False(t, IsNotFound(err))
	assert.ErrorIs(t, err, cause)
	assert.NoError(t, StorageUnavailable(nil, "a", "b", "c"))
}
