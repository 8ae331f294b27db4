package metric

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/datachannel/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	require.NoError(t, registry.RegisterCounter("test-service", "test_counter", counter))
	counter.Inc()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter" {
			found = true
			break
		}
	}
	assert.True(t, found, "Counter should be registered in Prometheus registry")
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	second := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge_2", Help: "dup"})

	require.NoError(t, registry.RegisterGauge("svc", "gauge", first))
	err := registry.RegisterGauge("svc", "gauge", second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_PrometheusConflict(t *testing.T) {
	registry := NewMetricsRegistry()

	a := prometheus.NewCounter(prometheus.CounterOpts{Name: "conflict_total", Help: "a"})
	b := prometheus.NewCounter(prometheus.CounterOpts{Name: "conflict_total", Help: "a"})

	require.NoError(t, registry.RegisterCounter("svc-a", "conflict", a))
	err := registry.RegisterCounter("svc-b", "conflict", b)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "unreg_total", Help: "x"}, []string{"k"})
	require.NoError(t, registry.RegisterCounterVec("svc", "unreg", vec))

	assert.True(t, registry.Unregister("svc", "unreg"))
	assert.False(t, registry.Unregister("svc", "unreg"))

	// The name is free again after unregistering.
	require.NoError(t, registry.RegisterCounterVec("svc", "unreg", vec))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	errs := make(chan error, len(names))
	for _, n := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "hist_" + n, Help: n})
			errs <- registry.RegisterHistogram("svc", n, h)
		}(n)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics()

	m.RecordChannelStatus("orders", 2)
	m.RecordMessage("orders", "outer", "delivered")
	m.RecordMessage("orders", "outer", "delivered")
	m.RecordException("orders", "endpoint")
	m.RecordDispatchDuration("orders", "outer", 5*time.Millisecond)
	m.RecordInitDuration("orders", 20*time.Millisecond)
	m.RecordNATSStatus(true)
	m.RecordNATSReconnect()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChannelStatus.WithLabelValues("orders")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("orders", "outer", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExceptionsTotal.WithLabelValues("orders", "endpoint")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSReconnects))

	m.RecordNATSStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.NATSConnected))
}

func TestMetricsRegistry_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordMessage("orders", "inner", "dropped")

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "datachannel_messages_total"), "exposition should contain core metrics")
}

func TestMetricsRegistry_Registered(t *testing.T) {
	registry := NewMetricsRegistry()
	assert.Empty(t, registry.Registered())

	require.NoError(t, registry.RegisterGauge("udp", "size", prometheus.NewGauge(prometheus.GaugeOpts{Name: "size_a", Help: "x"})))
	require.NoError(t, registry.Register("central", "channels", prometheus.NewGauge(prometheus.GaugeOpts{Name: "size_b", Help: "x"})))

	assert.Equal(t, []string{"central.channels", "udp.size"}, registry.Registered())
}
