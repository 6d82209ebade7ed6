package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())

	registry.CoreMetrics().RecordDispatch("inventory/TaxAndFee", "calculate", "success", 10*time.Millisecond)
	names := gatheredNames(t, registry)
	assert.True(t, names["cellbus_dispatch_calls_total"])
	assert.True(t, names["cellbus_dispatch_duration_seconds"])
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"})

	require.NoError(t, registry.RegisterCounter("svc", "test_counter", counter))
	counter.Inc()

	assert.True(t, gatheredNames(t, registry)["test_counter"])
	assert.Equal(t, 1.0, testutil.ToFloat64(counter))
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()
	g1 := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "x"})
	g2 := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "x"})

	require.NoError(t, registry.RegisterGauge("svc", "dup", g1))

	err := registry.RegisterGauge("svc", "dup", g2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// same prometheus name under a different key collides inside prometheus
	err = registry.RegisterGauge("other", "dup", g2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "unreg_total", Help: "x"}, []string{"a"})

	require.NoError(t, registry.RegisterCounterVec("svc", "unreg", vec))
	assert.True(t, registry.Unregister("svc", "unreg"))
	assert.False(t, registry.Unregister("svc", "unreg"))

	// can be registered again after removal
	require.NoError(t, registry.RegisterCounterVec("svc", "unreg", vec))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name: "concurrent_" + string(rune('a'+i)) + "_seconds",
				Help: "x",
			}, []string{"op"})
			assert.NoError(t, registry.RegisterHistogramVec("svc", string(rune('a'+i)), h))
		}(i)
	}
	wg.Wait()
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetricsRegistry().CoreMetrics()

	m.SetBreakerState("pos/Checkout", BreakerOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("pos/Checkout")))

	m.RecordTissue("checkout", false, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TissueExecutions.WithLabelValues("checkout", "failure")))

	m.RecordHealthCheck("registry", false, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("registry")))

	m.RecordNATSStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSConnected))
}

func TestMetricsRegistry_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RegistryPublishes.WithLabelValues("inventory").Inc()

	srv := httptest.NewServer(registry.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `cellbus_registry_publishes_total{sector="inventory"} 1`)
}
