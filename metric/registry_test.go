package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry_CoreMetricsRegistered(t *testing.T) {
	r := NewMetricsRegistry()

	m := r.CoreMetrics()
	require.NotNil(t, m)

	m.RetriesScheduled.WithLabelValues("orders").Inc()
	m.MessagesExpired.WithLabelValues("orders").Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetriesScheduled.WithLabelValues("orders")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesExpired.WithLabelValues("orders")))

	// Registered with the private registry, so gathering finds them
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["requeue_retries_scheduled_total"])
	assert.True(t, names["requeue_retries_expired_total"])
	assert.True(t, names["go_goroutines"], "runtime collectors should be registered")
}

func TestRegister_Duplicate(t *testing.T) {
	r := NewMetricsRegistry()

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "requeue_test_gauge"})
	require.NoError(t, r.Register("test_gauge", g))

	err := r.Register("test_gauge", g)
	assert.Error(t, err)

	assert.True(t, r.Unregister("test_gauge"))
	assert.False(t, r.Unregister("test_gauge"))
}

func TestObserveHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveHandler("orders", "success", 25*time.Millisecond)
	m.ObserveHandler("orders", "failure", 50*time.Millisecond)

	count := testutil.CollectAndCount(m.HandlerDuration)
	assert.Equal(t, 2, count)
}
