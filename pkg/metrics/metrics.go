// Package metrics provides Prometheus collectors for neventgen runs.
//
// Collectors are registered on an explicit prometheus.Registerer so that
// independent runs (and tests) do not share global state:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	m.MessageSent(1000, 12_345, 3*time.Millisecond)
//	http.Handle("/metrics", metrics.Handler(reg))
//
// Metric Types
//
//   - neventgen_messages_sent_total: messages accepted by the broker
//   - neventgen_events_sent_total: events carried by those messages
//   - neventgen_bytes_sent_total: encoded payload bytes
//   - neventgen_send_failures_total{retryable}: failed sends by classification
//   - neventgen_send_latency_seconds: encode plus transmit time per message
//   - neventgen_throughput_events_per_second: rate over the last progress interval
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "neventgen"

// Collector records per-run send statistics.
type Collector struct {
	MessagesSent prometheus.Counter
	EventsSent   prometheus.Counter
	BytesSent    prometheus.Counter
	SendFailures *prometheus.CounterVec
	SendLatency  prometheus.Histogram
	Throughput   prometheus.Gauge
}

// New registers the collectors on reg. A nil reg creates unregistered
// collectors, which is handy when metrics are disabled.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages accepted by the broker",
		}),
		EventsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_sent_total",
			Help:      "Detector events carried by sent messages",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Encoded payload bytes sent",
		}),
		SendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Messages that could not be delivered",
		}, []string{"retryable"}),
		SendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_latency_seconds",
			Help:      "Encode and transmit time per message",
			Buckets: []float64{
				0.0001, // 100µs
				0.001,  // 1ms
				0.005,
				0.01, // 10ms
				0.05,
				0.1, // 100ms
				0.5,
				1, // 1s
				5,
			},
		}),
		Throughput: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_events_per_second",
			Help:      "Events per second over the last progress interval",
		}),
	}
}

// MessageSent records one delivered message.
func (c *Collector) MessageSent(events, bytes int, latency time.Duration) {
	c.MessagesSent.Inc()
	c.EventsSent.Add(float64(events))
	c.BytesSent.Add(float64(bytes))
	c.SendLatency.Observe(latency.Seconds())
}

// SendFailed records one undeliverable message.
func (c *Collector) SendFailed(retryable bool) {
	c.SendFailures.WithLabelValues(strconv.FormatBool(retryable)).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It may be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks events per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	gauge     prometheus.Gauge
	now       func() time.Time
}

// NewThroughputTracker creates a tracker that publishes to gauge, which may be nil.
func NewThroughputTracker(gauge prometheus.Gauge) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		gauge:     gauge,
		now:       time.Now,
	}
}

// Increment adds n to the event count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns events per second since the last reset, publishes it
// to the gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	elapsed := now.Sub(t.lastReset).Seconds()
	if elapsed <= 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	// Reset for next period
	t.count = 0
	t.lastReset = now

	if t.gauge != nil {
		t.gauge.Set(throughput)
	}
	return throughput
}
