package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	cberrors "github.com/handylife-debug/webwaka-main-sub008/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testSettings = Settings{FailureThreshold: 3, CallTimeout: 50 * time.Millisecond, ResetTimeout: time.Minute}

func ok(context.Context) (string, error)   { return "ok", nil }
func fail(context.Context) (string, error) { return "", errors.New("boom") }

func TestTransitions(t *testing.T) {
	now := time.Now()
	s := Snapshot{}

	s = OnFailure(s, testSettings, now)
	s = OnFailure(s, testSettings, now)
	assert.Equal(t, Closed, s.State)
	assert.Equal(t, 2, s.Failures)

	s = OnSuccess(s)
	assert.Equal(t, 0, s.Failures, "success in closed resets failures")

	for i := 0; i < 3; i++ {
		s = OnFailure(s, testSettings, now)
	}
	assert.Equal(t, Open, s.State)

	_, admitted := Admit(s, testSettings, now.Add(59*time.Second))
	assert.False(t, admitted)

	s, admitted = Admit(s, testSettings, now.Add(time.Minute))
	assert.True(t, admitted)
	assert.Equal(t, HalfOpen, s.State)
	assert.True(t, s.TrialInFlight)

	_, admitted = Admit(s, testSettings, now.Add(time.Minute))
	assert.False(t, admitted, "only one trial")

	reopened := OnFailure(s, testSettings, now.Add(time.Minute))
	assert.Equal(t, Open, reopened.State)
	assert.Equal(t, now.Add(time.Minute), reopened.LastFailure)

	closed := OnSuccess(s)
	assert.Equal(t, Closed, closed.State)
	assert.Zero(t, closed.Failures)
}

func TestRetryAfter(t *testing.T) {
	now := time.Now()
	s := Snapshot{State: Open, LastFailure: now}
	assert.Equal(t, 40*time.Second, RetryAfter(s, testSettings, now.Add(20*time.Second)))
	assert.Zero(t, RetryAfter(s, testSettings, now.Add(2*time.Minute)))
	assert.Zero(t, RetryAfter(Snapshot{}, testSettings, now))
}

func TestCall_OpensAfterThresholdAndSkipsFn(t *testing.T) {
	clock := newFakeClock()
	b := New("inventory/TaxAndFee", testSettings, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := Call(ctx, b, fail)
		require.Error(t, err)
	}
	require.Equal(t, Open, b.State())

	var calls atomic.Int32
	_, err := Call(ctx, b, func(context.Context) (string, error) {
		calls.Add(1)
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, cberrors.ErrCircuitOpen)
	assert.Zero(t, calls.Load())
}

func TestCall_HalfOpenTrial(t *testing.T) {
	clock := newFakeClock()
	b := New("c", testSettings, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = Call(ctx, b, fail)
	}
	clock.Advance(time.Minute)

	_, err := Call(ctx, b, fail)
	require.EqualError(t, err, "boom")
	assert.Equal(t, Open, b.State())

	// cooldown restarted at the failed trial
	clock.Advance(30 * time.Second)
	_, err = Call(ctx, b, ok)
	assert.ErrorIs(t, err, ErrOpen)

	clock.Advance(30 * time.Second)
	out, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, Closed, b.State())
	assert.Zero(t, b.Snapshot().Failures)
}

func TestCall_SingleTrialUnderConcurrency(t *testing.T) {
	clock := newFakeClock()
	cfg := testSettings
	cfg.CallTimeout = 5 * time.Second
	b := New("c", cfg, WithClock(clock.Now))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = Call(ctx, b, fail)
	}
	clock.Advance(time.Minute)

	release := make(chan struct{})
	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Call(ctx, b, func(context.Context) (string, error) {
				admitted.Add(1)
				<-release
				return "ok", nil
			})
		}()
	}
	require.Eventually(t, func() bool { return admitted.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, Closed, b.State())
}

func TestCall_TimeoutCountsAsFailure(t *testing.T) {
	b := New("slow", Settings{FailureThreshold: 1, CallTimeout: 10 * time.Millisecond, ResetTimeout: time.Minute})

	finished := make(chan struct{})
	_, err := Call(context.Background(), b, func(context.Context) (string, error) {
		defer close(finished)
		time.Sleep(50 * time.Millisecond)
		return "late", nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, Open, b.State())

	<-finished
	assert.Equal(t, Open, b.State(), "late success is discarded")
}

func TestCall_CancelledContextReleasesTrial(t *testing.T) {
	clock := newFakeClock()
	b := New("c", testSettings, WithClock(clock.Now))
	for i := 0; i < 3; i++ {
		_, _ = Call(context.Background(), b, fail)
	}
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, b, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return "", ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	snap := b.Snapshot()
	assert.False(t, snap.TrialInFlight)
	assert.Equal(t, 3, snap.Failures)
}

func TestCall_IgnoredErrorDoesNotCount(t *testing.T) {
	clock := newFakeClock()
	b := New("c", testSettings, WithClock(clock.Now))
	ctx := context.Background()
	invalid := errors.New("unknown action")

	for i := 0; i < 5; i++ {
		_, err := Call(ctx, b, func(context.Context) (string, error) {
			return "", Ignore(invalid)
		})
		require.Error(t, err)
		assert.Same(t, invalid, err)
	}
	assert.Equal(t, Closed, b.State())
	assert.Zero(t, b.Snapshot().Failures)

	for i := 0; i < 3; i++ {
		_, _ = Call(ctx, b, fail)
	}
	clock.Advance(time.Minute)
	_, err := Call(ctx, b, func(context.Context) (string, error) {
		return "", Ignore(invalid)
	})
	assert.Same(t, invalid, err)
	snap := b.Snapshot()
	assert.False(t, snap.TrialInFlight, "ignored error releases the trial")

	out, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, Closed, b.State())
}

func TestIgnore_Nil(t *testing.T) {
	assert.NoError(t, Ignore(nil))
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []string
	b := New("c", Settings{FailureThreshold: 1, CallTimeout: time.Second, ResetTimeout: time.Minute},
		WithStateChange(func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		}))

	b.Failure()
	b.Reset()
	assert.Equal(t, []string{"c:closed->open", "c:open->closed"}, transitions)
}

func TestSettings_Validate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())
	bad := DefaultSettings()
	bad.FailureThreshold = 0
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, cberrors.IsInvalid(err))
}

// The failure counter never reaches the threshold while closed, and a
// half-open breaker always has a trial in flight.
func TestTransitions_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := Settings{
			FailureThreshold: rapid.IntRange(1, 6).Draw(t, "threshold"),
			CallTimeout:      time.Second,
			ResetTimeout:     time.Duration(rapid.IntRange(1, 10).Draw(t, "reset")) * time.Second,
		}
		now := time.Unix(0, 0)
		s := Snapshot{}
		inFlight := false

		steps := rapid.SliceOfN(rapid.IntRange(0, 3), 1, 60).Draw(t, "steps")
		for _, op := range steps {
			switch op {
			case 0:
				var admitted bool
				s, admitted = Admit(s, cfg, now)
				if admitted {
					inFlight = true
				}
			case 1:
				if inFlight {
					s = OnSuccess(s)
					inFlight = false
				}
			case 2:
				if inFlight {
					s = OnFailure(s, cfg, now)
					inFlight = false
				}
			case 3:
				now = now.Add(time.Second)
			}

			if s.State == Closed && s.Failures >= cfg.FailureThreshold {
				t.Fatalf("closed with %d failures (threshold %d)", s.Failures, cfg.FailureThreshold)
			}
			if s.State == HalfOpen && !s.TrialInFlight {
				t.Fatalf("half-open without trial")
			}
			if s.State == Open && s.TrialInFlight {
				t.Fatalf("open with trial in flight")
			}
		}
	})
}
