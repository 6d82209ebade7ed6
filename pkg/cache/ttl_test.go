package cache

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/metric"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration, opts ...Option[string]) (*TTL[string], *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append(opts, WithClock[string](clock.Now))
	c, err := NewTTL[string](context.Background(), ttl, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestTTL_SetGet(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	created, err := c.Set("a", "1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", "2")
	require.NoError(t, err)
	assert.False(t, created)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, int64(1), c.Stats().Hits())
	assert.Equal(t, int64(1), c.Stats().Misses())
}

func TestTTL_Expiry(t *testing.T) {
	var evicted []string
	c, clock := newTestCache(t, time.Minute, WithEvictionCallback[string](func(k, _ string) {
		evicted = append(evicted, k)
	}))

	_, _ = c.Set("a", "1")
	clock.Advance(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestTTL_SetRefreshesExpiry(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	_, _ = c.Set("a", "1")
	clock.Advance(50 * time.Second)
	_, _ = c.Set("a", "1")
	clock.Advance(50 * time.Second)

	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestTTL_DeletePrefix(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	for _, k := range []string{"inventory/Tax:stable", "inventory/Tax:canary", "inventory/TaxReport:stable", "pos/Cart:stable"} {
		_, err := c.Set(k, "v")
		require.NoError(t, err)
	}

	n := c.DeletePrefix("inventory/Tax:")
	assert.Equal(t, 2, n)

	keys := c.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"inventory/TaxReport:stable", "pos/Cart:stable"}, keys)
	assert.Equal(t, 0, c.DeletePrefix("nothing:"))
}

func TestTTL_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	_, _ = c.Set("a", "1")
	_, _ = c.Set("b", "2")

	existed, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = c.Delete("a")
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, int64(0), c.Stats().CurrentSize())
	assert.Equal(t, int64(2), c.Stats().MaxSize())
}

func TestTTL_EmptyKeyRejected(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	_, err := c.Set("", "x")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = c.Delete("")
	assert.True(t, errors.IsInvalid(err))
}

func TestNewTTL_InvalidTTL(t *testing.T) {
	_, err := NewTTL[string](context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestTTL_Sweeper(t *testing.T) {
	clock := newFakeClock()
	c, err := NewTTL[string](context.Background(), time.Minute,
		WithClock[string](clock.Now),
		WithCleanupInterval[string](5*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	_, _ = c.Set("a", "1")
	clock.Advance(2 * time.Minute)

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTTL_CloseIsIdempotent(t *testing.T) {
	c, err := NewTTL[string](context.Background(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestTTL_Metrics(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	c, _ := newTestCache(t, time.Minute, WithMetrics[string](reg, "resolutions"))

	_, _ = c.Set("a", "1")
	c.Get("a")
	c.Get("b")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.size))

	// a second cache with the same name collides
	_, err := NewTTL[string](context.Background(), time.Minute, WithMetrics[string](reg, "resolutions"))
	require.Error(t, err)
}

func TestTTL_Concurrent(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%26))
			_, _ = c.Set(key, "v")
			c.Get(key)
			c.DeletePrefix(key)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 26)
}
