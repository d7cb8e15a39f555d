package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	labels := map[string]string{"connector": "injected", "chain": "137"}
	rec.IncCounter(EventConnectSuccess, labels)
	rec.IncCounter(EventConnectSuccess, labels)
	rec.ObserveLatency(OpConnect, 120*time.Millisecond, labels)

	got := testutil.ToFloat64(rec.counters.With(prometheus.Labels{
		"type": EventConnectSuccess, "connector": "injected", "chain": "137",
	}))
	assert.Equal(t, float64(2), got)
	assert.Equal(t, 1, testutil.CollectAndCount(rec.histogram))

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err, "registering twice on the same registry must fail")
}
