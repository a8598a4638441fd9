package transport

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ajitpratap0/neventgen/pkg/config"
	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/observability"
)

// NATSTransmitter publishes messages on core NATS subjects. Every publish is
// followed by a flush so Send returns only after the server has the message.
type NATSTransmitter struct {
	conn    *nats.Conn
	opts    Options
	timeout time.Duration
	seq     uint64
	logger  *zap.Logger
}

// NewNATSTransmitter connects to the servers listed in cfg.Brokers.
func NewNATSTransmitter(cfg *config.TransportConfig, opts Options) (*NATSTransmitter, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.logger().With(zap.String("transport", config.TransportNATS))

	conn, err := nats.Connect(strings.Join(cfg.Brokers, ","),
		nats.Name(cfg.ClientID),
		nats.Timeout(timeout),
		nats.MaxReconnects(cfg.Retries),
		nats.ReconnectWait(cfg.RetryBackoff),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nerrors.Transmission(err, isRetryableNATS(err), "failed to connect to NATS").
			WithDetail("servers", cfg.Brokers)
	}

	logger.Info("connected to NATS", zap.String("url", conn.ConnectedUrl()))
	return &NATSTransmitter{
		conn:    conn,
		opts:    opts,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Send implements Transmitter.
func (nt *NATSTransmitter) Send(ctx context.Context, subject string, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return nerrors.Wrap(err, nerrors.ErrorTypeCancelled, "send cancelled")
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    buf,
		Header:  nats.Header{},
	}
	msg.Header.Set(HeaderRunID, nt.opts.RunID)
	msg.Header.Set(HeaderFormat, nt.opts.Format)
	msg.Header.Set(HeaderSeq, strconv.FormatUint(nt.seq, 10))
	msg.Header.Set(HeaderContentType, contentType(nt.opts.Format))
	for k, v := range observability.InjectHeaders(ctx) {
		msg.Header.Set(k, v)
	}

	if err := nt.conn.PublishMsg(msg); err != nil {
		return nerrors.Transmission(err, isRetryableNATS(err), "failed to publish message").
			WithDetail("subject", subject)
	}
	if err := nt.conn.FlushTimeout(nt.timeout); err != nil {
		return nerrors.Transmission(err, isRetryableNATS(err), "failed to flush message").
			WithDetail("subject", subject)
	}
	nt.seq++
	return nil
}

// Close implements Transmitter.
func (nt *NATSTransmitter) Close() error {
	if nt.conn.IsClosed() {
		return nil
	}
	if err := nt.conn.Drain(); err != nil {
		nt.conn.Close()
		return nerrors.Wrap(err, nerrors.ErrorTypeTransmission, "failed to drain NATS connection")
	}
	return nil
}

// isRetryableNATS reports whether a publish failure may succeed when retried.
func isRetryableNATS(err error) bool {
	switch {
	case errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrReconnectBufExceeded),
		errors.Is(err, nats.ErrStaleConnection):
		return true
	default:
		return false
	}
}
