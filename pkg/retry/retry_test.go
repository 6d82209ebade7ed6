package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("conflict")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	cause := errors.New("still broken")
	err := Do(context.Background(), fastConfig(4), func() error {
		attempts++
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed after 4 attempts")
	assert.Equal(t, 4, attempts)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	attempts := 0
	cause := errors.New("bad input")
	err := Do(context.Background(), fastConfig(5), func() error {
		attempts++
		return Permanent(cause)
	})

	assert.Equal(t, 1, attempts)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, cause)
	assert.NoError(t, Permanent(nil))
}

func TestDo_RetryablePredicate(t *testing.T) {
	retryable := errors.New("retry me")
	fatal := errors.New("give up")

	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return errors.Is(err, retryable) }

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return retryable
		}
		return fatal
	})

	assert.Equal(t, 2, attempts)
	assert.ErrorIs(t, err, fatal)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 10, InitialDelay: 200 * time.Millisecond, MaxDelay: time.Second}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("nope")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, attempts, 10)
}

func TestDo_InvalidConfig(t *testing.T) {
	err := Do(context.Background(), Config{InitialDelay: -1}, func() error { return nil })
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = Do(context.Background(), Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}, func() error { return nil })
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), Config{}, func() error {
		attempts++
		return errors.New("x")
	})
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	v, err := DoWithResult(context.Background(), fastConfig(3), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPresets(t *testing.T) {
	for name, cfg := range map[string]Config{
		"default":   DefaultConfig(),
		"conflicts": Conflicts(),
		"startup":   Startup(),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := cfg.normalize()
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, cfg.MaxAttempts, 1)
		})
	}
}
