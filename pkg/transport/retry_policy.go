package transport

import (
	"context"
	"math/rand"
	"time"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

// jitter spreads each backoff over +/-25%.
const jitter = 0.25

// RetryPolicy bounds how often one message is offered to a transmitter.
// The backoff doubles per failed attempt up to MaxBackoff.
type RetryPolicy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// NewRetryPolicy returns a policy allowing attempts sends of a message.
func NewRetryPolicy(attempts int, backoff, maxBackoff time.Duration) *RetryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	if maxBackoff < backoff {
		maxBackoff = backoff
	}
	return &RetryPolicy{Attempts: attempts, Backoff: backoff, MaxBackoff: maxBackoff}
}

// NoRetryPolicy sends each message exactly once.
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{Attempts: 1}
}

// send calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. onRetry is told about every failure that will be retried.
func (rp *RetryPolicy) send(ctx context.Context, fn func() error, onRetry func(attempt int, wait time.Duration, err error)) error {
	attempt := 1
	for {
		err := fn()
		switch {
		case err == nil:
			return nil
		case !nerrors.IsRetryable(err):
			return err
		case attempt >= rp.Attempts:
			if rp.Attempts == 1 {
				return err
			}
			return nerrors.Wrap(err, nerrors.ErrorTypeTransmission, "retries exhausted").
				WithDetail("attempts", rp.Attempts)
		}

		wait := rp.backoff(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
		select {
		case <-ctx.Done():
			return nerrors.Wrap(ctx.Err(), nerrors.ErrorTypeCancelled, "retry cancelled")
		case <-time.After(wait):
		}
		attempt++
	}
}

// backoff returns the wait after the given failed attempt (1-based).
func (rp *RetryPolicy) backoff(attempt int) time.Duration {
	d := rp.Backoff
	for i := 1; i < attempt && d < rp.MaxBackoff; i++ {
		d *= 2
	}
	if d > rp.MaxBackoff {
		d = rp.MaxBackoff
	}
	spread := float64(d) * jitter
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}
