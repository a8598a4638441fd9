package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MessageSent(4, 100, time.Millisecond)
	m.MessageSent(2, 50, 2*time.Millisecond)
	m.SendFailed(true)
	m.SendFailed(false)
	m.SendFailed(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesSent))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.EventsSent))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.BytesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendFailures.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SendFailures.WithLabelValues("false")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SendLatency))
}

func TestRegistriesAreIndependent(t *testing.T) {
	first := New(prometheus.NewRegistry())
	second := New(prometheus.NewRegistry())

	first.MessageSent(1, 1, 0)
	assert.Zero(t, testutil.ToFloat64(second.MessagesSent))

	assert.NotPanics(t, func() { New(nil).MessageSent(1, 1, 0) })
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).MessageSent(3, 36, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "neventgen_events_sent_total 3")
	assert.Contains(t, string(body), "neventgen_send_latency_seconds_bucket")
}

func TestThroughputTracker(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "tput"})
	tr := NewThroughputTracker(gauge)

	start := time.Unix(100, 0)
	tr.lastReset = start
	tr.now = func() time.Time { return start.Add(2 * time.Second) }

	tr.Increment(300)
	tr.Increment(100)
	assert.Equal(t, 200.0, tr.GetAndReset())
	assert.Equal(t, 200.0, testutil.ToFloat64(gauge))

	assert.Zero(t, tr.GetAndReset(), "no time elapsed since reset")
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
