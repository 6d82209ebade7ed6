package breaker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

var (
	// ErrOpen is returned without calling through when the breaker rejects.
	ErrOpen = fmt.Errorf("breaker: %w", errors.ErrCircuitOpen)

	// ErrTimeout is returned when a call outlives Settings.CallTimeout.
	ErrTimeout = stderrors.New("breaker: call timed out")
)

// StateChangeFunc observes transitions.
type StateChangeFunc func(name string, from, to State)

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateChange registers a transition callback. It runs under the
// breaker lock and must not call back into the breaker.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker guards one target. Safe for concurrent use.
type Breaker struct {
	name     string
	cfg      Settings
	now      func() time.Time
	onChange StateChangeFunc

	mu   sync.Mutex
	snap Snapshot
}

// New creates a closed breaker.
func New(name string, cfg Settings, opts ...Option) *Breaker {
	b := &Breaker{name: name, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the guarded target.
func (b *Breaker) Name() string { return b.name }

// Settings returns the thresholds.
func (b *Breaker) Settings() Settings { return b.cfg }

// Snapshot returns the current state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// State returns the current position.
func (b *Breaker) State() State {
	return b.Snapshot().State
}

// RetryAfter returns the remaining cooldown.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return RetryAfter(b.snap, b.cfg, b.now())
}

// Allow admits a call or returns ErrOpen. An admitted call must be settled
// with Success, Failure or Abandon.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, ok := Admit(b.snap, b.cfg, b.now())
	b.set(next)
	if !ok {
		return ErrOpen
	}
	return nil
}

// Success settles an admitted call as successful.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(OnSuccess(b.snap))
}

// Failure settles an admitted call as failed.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(OnFailure(b.snap, b.cfg, b.now()))
}

// Abandon settles an admitted call without an outcome.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(OnAbandon(b.snap))
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(Snapshot{})
}

func (b *Breaker) set(next Snapshot) {
	prev := b.snap.State
	b.snap = next
	if prev != next.State && b.onChange != nil {
		b.onChange(b.name, prev, next.State)
	}
}

// Ignore marks err as the caller's fault. Call returns the wrapped error
// unchanged and settles the call with Abandon, so it never counts against the
// target.
func Ignore(err error) error {
	if err == nil {
		return nil
	}
	return &ignoredError{err: err}
}

type ignoredError struct{ err error }

func (e *ignoredError) Error() string { return e.err.Error() }
func (e *ignoredError) Unwrap() error { return e.err }

type result[T any] struct {
	val T
	err error
}

// Call runs fn through b. A rejected call returns ErrOpen without running fn.
// If fn does not return within CallTimeout the call counts as a failure and
// ErrTimeout is returned; fn keeps running and its result is dropped.
// Cancellation of ctx returns ctx.Err() without counting a failure, as does
// an error fn marked with Ignore.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	timer := time.NewTimer(b.cfg.CallTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		var ignored *ignoredError
		if stderrors.As(r.err, &ignored) {
			b.Abandon()
			return zero, ignored.err
		}
		if r.err != nil {
			b.Failure()
			return zero, r.err
		}
		b.Success()
		return r.val, nil
	case <-timer.C:
		b.Failure()
		return zero, fmt.Errorf("%w after %s", ErrTimeout, b.cfg.CallTimeout)
	case <-ctx.Done():
		b.Abandon()
		return zero, ctx.Err()
	}
}
