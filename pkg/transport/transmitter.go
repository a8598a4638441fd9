// Package transport delivers encoded event messages to a broker.
//
// Every Transmitter reports failures as transmission errors carrying a
// retryability hint (see errors.IsRetryable). New wraps the concrete
// transport in a retry decorator that retries retryable failures a bounded
// number of times with exponential backoff; anything else is returned to
// the caller unchanged.
package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/neventgen/pkg/config"
	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

// Transmitter sends encoded buffers to a destination topic.
type Transmitter interface {
	// Send delivers buf to topic and returns once the broker accepted it.
	Send(ctx context.Context, topic string, buf []byte) error
	// Close releases the connection.
	Close() error
}

// Options carries per-run metadata attached to every message.
type Options struct {
	RunID  string
	Format string
	Logger *zap.Logger
}

func (o *Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// New connects the transport selected by cfg.Kind and wraps it with the
// configured retry policy.
func New(ctx context.Context, cfg *config.TransportConfig, opts Options) (Transmitter, error) {
	var (
		t   Transmitter
		err error
	)

	switch cfg.Kind {
	case config.TransportKafka:
		t, err = NewKafkaTransmitter(cfg, opts)
	case config.TransportNATS:
		t, err = NewNATSTransmitter(cfg, opts)
	case config.TransportFile:
		t = NewFileTransmitter()
	default:
		return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "unknown transport kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	policy := NewRetryPolicy(cfg.Retries+1, cfg.RetryBackoff, cfg.MaxRetryBackoff)
	return WithRetry(t, policy, opts.logger()), nil
}

// Retrying retries retryable failures of the wrapped transmitter.
type Retrying struct {
	next   Transmitter
	policy *RetryPolicy
	logger *zap.Logger
}

// WithRetry wraps t with policy.
func WithRetry(t Transmitter, policy *RetryPolicy, logger *zap.Logger) *Retrying {
	if policy == nil {
		policy = NoRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{next: t, policy: policy, logger: logger}
}

// Send implements Transmitter.
func (r *Retrying) Send(ctx context.Context, topic string, buf []byte) error {
	return r.policy.send(ctx,
		func() error { return r.next.Send(ctx, topic, buf) },
		func(attempt int, wait time.Duration, err error) {
			r.logger.Warn("retrying send",
				zap.String("topic", topic),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err))
		})
}

// Close implements Transmitter.
func (r *Retrying) Close() error {
	return r.next.Close()
}
