// Package generator streams an event batch to a broker.
//
// A Generator drives a flow.Controller over the batch. For every chunk it
// builds a wire message, encodes it and hands it to the transmitter, one
// chunk at a time and in order. The first encode or transmit failure faults
// the controller and ends the run; nothing after the failed chunk is sent.
//
//	gen, err := generator.New(cfg, serializer, transmitter,
//	    generator.WithLogger(logger),
//	    generator.WithMetrics(metrics.New(reg)))
//	report, err := gen.Run(ctx, batch)
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/neventgen/pkg/config"
	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/events"
	"github.com/ajitpratap0/neventgen/pkg/flow"
	"github.com/ajitpratap0/neventgen/pkg/metrics"
	"github.com/ajitpratap0/neventgen/pkg/observability"
	"github.com/ajitpratap0/neventgen/pkg/transport"
	"github.com/ajitpratap0/neventgen/pkg/wire"
)

// Report summarizes a run.
type Report struct {
	RunID        string        `json:"run_id"`
	MessagesSent uint64        `json:"messages_sent"`
	EventsSent   int64         `json:"events_sent"`
	BytesSent    int64         `json:"bytes_sent"`
	State        flow.State    `json:"-"`
	FailedChunk  *flow.Chunk   `json:"failed_chunk,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Generator sends one batch per Run.
type Generator struct {
	cfg         *config.StreamConfig
	serializer  wire.Serializer
	transmitter transport.Transmitter

	runID   string
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithMetrics records send statistics on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(g *Generator) {
		g.tracer = t
	}
}

// WithRunID sets the run identifier; a random UUID is used otherwise.
func WithRunID(id string) Option {
	return func(g *Generator) {
		g.runID = id
	}
}

// WithClock replaces time.Now for pulse times, pacing and progress.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New returns a generator for cfg.
func New(cfg *config.StreamConfig, serializer wire.Serializer, transmitter transport.Transmitter, opts ...Option) (*Generator, error) {
	if cfg == nil || serializer == nil || transmitter == nil {
		return nil, nerrors.New(nerrors.ErrorTypeInternal, "generator needs a configuration, a serializer and a transmitter")
	}

	g := &Generator{
		cfg:         cfg,
		serializer:  serializer,
		transmitter: transmitter,
		logger:      zap.NewNop(),
		tracer:      observability.Tracer("github.com/ajitpratap0/neventgen/internal/generator"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.runID == "" {
		g.runID = uuid.NewString()
	}
	if g.metrics == nil {
		g.metrics = metrics.New(nil)
	}
	g.logger = g.logger.With(
		zap.String("component", "generator"),
		zap.String("run_id", g.runID))
	return g, nil
}

// RunID returns the run identifier attached to logs and spans.
func (g *Generator) RunID() string {
	return g.runID
}

// Run streams batch and blocks until every chunk was sent, the duration
// budget ran out, or a chunk failed. An empty batch succeeds without sending
// anything. The batch is not released.
func (g *Generator) Run(ctx context.Context, batch *events.Batch) (report Report, err error) {
	start := g.now()
	report.RunID = g.runID

	total := batch.Len()
	chunkSize := g.cfg.EventsPerMessage()
	ctrl, err := flow.New(total, flow.Params{
		ChunkSize: chunkSize,
		Delay:     g.cfg.Flow.Delay,
		Rate:      g.cfg.Flow.Rate,
		Repeat:    g.cfg.Flow.Repeat,
		Duration:  g.cfg.Flow.Duration,
	}, flow.WithClock(g.now))
	if err != nil {
		return report, err
	}

	ctx, span := g.tracer.Start(ctx, "generator.run", trace.WithAttributes(
		attribute.String("run.id", g.runID),
		attribute.String("topic", g.cfg.Transport.Topic),
		attribute.Int("events", total),
		attribute.Int("chunk_size", chunkSize),
		attribute.Int("repeat", g.cfg.Flow.Repeat),
	))
	defer func() {
		report.State = ctrl.State()
		report.Duration = g.now().Sub(start)
		span.SetAttributes(
			attribute.Int64("messages_sent", int64(report.MessagesSent)),
			attribute.String("state", report.State.String()))
		observability.End(span, err)
	}()

	g.logger.Info("starting run",
		zap.String("topic", g.cfg.Transport.Topic),
		zap.String("format", g.serializer.Format()),
		zap.Int("events", total),
		zap.Int("events_per_message", chunkSize),
		zap.Int("messages_per_pass", flow.ChunkCount(total, chunkSize)),
		zap.Int("repeat", g.cfg.Flow.Repeat))

	if err := ctx.Err(); err != nil {
		return report, nerrors.Wrap(err, nerrors.ErrorTypeCancelled, "run cancelled before start")
	}

	tracker := metrics.NewThroughputTracker(g.metrics.Throughput)
	lastProgress := start

	for {
		chunk, ok, err := ctrl.Next(ctx)
		if err != nil {
			g.logger.Warn("run interrupted", zap.Uint64("messages_sent", report.MessagesSent), zap.Error(err))
			return report, err
		}
		if !ok {
			break
		}

		n, err := g.sendChunk(ctx, batch, chunk)
		if err != nil {
			ctrl.Fail(err)
			failed := chunk
			report.FailedChunk = &failed
			g.metrics.SendFailed(nerrors.IsRetryable(err))
			g.logger.Error("chunk failed, aborting run",
				zap.Uint64("seq", chunk.Seq),
				zap.Int("offset", chunk.Offset),
				zap.Int("length", chunk.Length),
				zap.Bool("retryable", nerrors.IsRetryable(err)),
				zap.Error(err))
			return report, nerrors.Wrap(err, nerrors.TypeOf(err), fmt.Sprintf("chunk %d failed", chunk.Seq)).
				WithDetail("seq", chunk.Seq).
				WithDetail("offset", chunk.Offset)
		}

		report.MessagesSent++
		report.EventsSent += int64(chunk.Length)
		report.BytesSent += int64(n)
		tracker.Increment(int64(chunk.Length))

		if interval := g.cfg.ReportInterval; interval > 0 {
			if now := g.now(); now.Sub(lastProgress) >= interval {
				lastProgress = now
				g.logger.Info("progress",
					zap.Uint64("messages_sent", report.MessagesSent),
					zap.Int64("events_sent", report.EventsSent),
					zap.Int64("bytes_sent", report.BytesSent),
					zap.Int("pass", chunk.Pass),
					zap.Float64("events_per_sec", tracker.GetAndReset()))
			}
		}
	}

	elapsed := g.now().Sub(start)
	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(report.EventsSent) / elapsed.Seconds()
	}
	g.logger.Info("run completed",
		zap.Uint64("messages_sent", report.MessagesSent),
		zap.Int64("events_sent", report.EventsSent),
		zap.Int64("bytes_sent", report.BytesSent),
		zap.Duration("duration", elapsed),
		zap.Float64("events_per_sec", throughput))
	return report, nil
}

// pulseTime places the pass in the upper 32 bits and the chunk's first time
// of flight in the lower 32, so a chunk always encodes to the same bytes.
func pulseTime(pass int, ts []int32) uint64 {
	pulse := uint64(uint32(pass)) << 32
	if len(ts) > 0 {
		pulse |= uint64(uint32(ts[0]))
	}
	return pulse
}

// sendChunk encodes and transmits one chunk and returns the encoded size.
func (g *Generator) sendChunk(ctx context.Context, batch *events.Batch, chunk flow.Chunk) (n int, err error) {
	ctx, span := g.tracer.Start(ctx, "generator.chunk", trace.WithAttributes(
		attribute.Int64("seq", int64(chunk.Seq)),
		attribute.Int("offset", chunk.Offset),
		attribute.Int("length", chunk.Length),
	))
	defer func() {
		span.SetAttributes(attribute.Int("bytes", n))
		observability.End(span, err)
	}()

	timer := metrics.NewTimer()
	ids, ts := batch.Slice(chunk.Offset, chunk.Length)
	buf, err := g.serializer.Encode(wire.Message{
		SourceName:  g.cfg.SourceName,
		MessageID:   chunk.Seq,
		PulseTime:   pulseTime(chunk.Pass, ts),
		DetectorIDs: ids,
		Timestamps:  ts,
	})
	if err != nil {
		return 0, err
	}

	if err := g.transmitter.Send(ctx, g.cfg.Transport.Topic, buf); err != nil {
		return 0, err
	}
	g.metrics.MessageSent(chunk.Length, len(buf), timer.Stop())
	return len(buf), nil
}
