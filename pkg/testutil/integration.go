package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/neventgen/pkg/events"
	"github.com/ajitpratap0/neventgen/pkg/source"
)

// Environment variables naming live brokers for integration tests
const (
	EnvKafkaBrokers = "NEVENTGEN_TEST_KAFKA_BROKERS"
	EnvNATSURL      = "NEVENTGEN_TEST_NATS_URL"
)

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// KafkaBrokers returns the brokers from EnvKafkaBrokers or skips the test.
func KafkaBrokers(t *testing.T) []string {
	t.Helper()
	IntegrationTest(t)
	v := os.Getenv(EnvKafkaBrokers)
	if v == "" {
		t.Skipf("%s not set", EnvKafkaBrokers)
	}
	return strings.Split(v, ",")
}

// NATSURL returns the server URL from EnvNATSURL. Without it, integration
// builds start a NATS container and other builds skip the test.
func NATSURL(t *testing.T) string {
	t.Helper()
	IntegrationTest(t)
	if v := os.Getenv(EnvNATSURL); v != "" {
		return v
	}
	return startNATS(t)
}

// WriteSource writes b as a .nev file under dir and returns its path.
func WriteSource(t *testing.T, dir, name string, b *events.Batch) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, source.Write(f, b))
	return path
}

// PerformanceTest checks the throughput of a run against a floor
type PerformanceTest struct {
	t             *testing.T
	name          string
	minThroughput float64 // events/sec
	maxMemory     int64   // bytes
}

// NewPerformanceTest creates a new performance test
func NewPerformanceTest(t *testing.T, name string) *PerformanceTest {
	return &PerformanceTest{t: t, name: name}
}

// WithThroughputTarget sets minimum throughput requirement
func (p *PerformanceTest) WithThroughputTarget(eventsPerSec float64) *PerformanceTest {
	p.minThroughput = eventsPerSec
	return p
}

// WithMemoryTarget sets maximum memory growth
func (p *PerformanceTest) WithMemoryTarget(maxBytes int64) *PerformanceTest {
	p.maxMemory = maxBytes
	return p
}

// Run executes fn and checks the configured targets.
func (p *PerformanceTest) Run(fn func() (eventsSent int64, duration time.Duration)) {
	p.t.Helper()

	initial := heapAlloc()
	sent, duration := fn()
	used := int64(heapAlloc()) - int64(initial)

	throughput := 0.0
	if duration > 0 {
		throughput = float64(sent) / duration.Seconds()
	}

	p.t.Logf("Performance Test: %s", p.name)
	p.t.Logf("  Events: %d", sent)
	p.t.Logf("  Duration: %v", duration)
	p.t.Logf("  Throughput: %.0f events/sec", throughput)
	p.t.Logf("  Heap growth: %s", formatBytes(used))

	if p.minThroughput > 0 && throughput < p.minThroughput {
		p.t.Errorf("Throughput %.0f events/sec below target %.0f events/sec", throughput, p.minThroughput)
	}
	if p.maxMemory > 0 && used > p.maxMemory {
		p.t.Errorf("Heap growth %s exceeds target %s", formatBytes(used), formatBytes(p.maxMemory))
	}
}

func heapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

// formatBytes formats bytes into human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < 0 {
		return "-" + formatBytes(-bytes)
	}
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
