// Package testutil provides testing utilities for neventgen
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/neventgen/pkg/events"
)

// TestContext creates a context with a 30-second timeout that is cancelled
// when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// SequentialBatch returns n events with detector IDs 1..n and timestamps
// 1000, 2000, ...
func SequentialBatch(t *testing.T, n int) *events.Batch {
	t.Helper()
	ids := make([]int64, n)
	ts := make([]int32, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(i + 1)
		ts[i] = int32(1000 * (i + 1))
	}
	b, err := events.FromSlices(ids, ts)
	require.NoError(t, err)
	return b
}

// Sent is one buffer captured by a Transmitter.
type Sent struct {
	Topic string
	Buf   []byte
}

// Transmitter records every sent buffer. When Err is set, the send with
// 1-based index FailAt returns it instead.
type Transmitter struct {
	FailAt int
	Err    error
	// OnSend runs at the start of every send with its 1-based index
	OnSend func(n int)

	mu     sync.Mutex
	calls  int
	sent   []Sent
	closed bool
}

// Send records buf.
func (r *Transmitter) Send(_ context.Context, topic string, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.OnSend != nil {
		r.OnSend(r.calls)
	}
	if r.Err != nil && r.calls == r.FailAt {
		return r.Err
	}
	r.sent = append(r.sent, Sent{Topic: topic, Buf: append([]byte(nil), buf...)})
	return nil
}

// Close marks the transmitter closed.
func (r *Transmitter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Calls returns the number of Send calls, failed ones included.
func (r *Transmitter) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Sent returns the buffers accepted so far.
func (r *Transmitter) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Closed reports whether Close was called.
func (r *Transmitter) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
