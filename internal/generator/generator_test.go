package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/neventgen/pkg/config"
	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/events"
	"github.com/ajitpratap0/neventgen/pkg/flow"
	"github.com/ajitpratap0/neventgen/pkg/metrics"
	"github.com/ajitpratap0/neventgen/pkg/testutil"
	"github.com/ajitpratap0/neventgen/pkg/transport"
	"github.com/ajitpratap0/neventgen/pkg/wire"
)

func testConfig(eventsPerMessage int) *config.StreamConfig {
	cfg := config.Default()
	cfg.Source = "synth://"
	cfg.SourceName = "test-source"
	cfg.Transport.Topic = "detector_events"
	cfg.Flow.EventsPerMessage = eventsPerMessage
	cfg.ReportInterval = 0
	return cfg
}

func newGenerator(t *testing.T, cfg *config.StreamConfig, tx transport.Transmitter, opts ...Option) *Generator {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithRunID("run-1")}, opts...)
	g, err := New(cfg, wire.FlatBufferSerializer{}, tx, opts...)
	require.NoError(t, err)
	return g
}

func TestRunChunksInOrder(t *testing.T) {
	tx := &testutil.Transmitter{}
	g := newGenerator(t, testConfig(4), tx)

	report, err := g.Run(context.Background(), testutil.SequentialBatch(t, 10))
	require.NoError(t, err)

	sent := tx.Sent()
	require.Len(t, sent, 3)
	var lengths []int
	var allIDs []int64
	for i, s := range sent {
		assert.Equal(t, "detector_events", s.Topic)
		msg, err := wire.Decode(s.Buf)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), msg.MessageID)
		assert.Equal(t, "test-source", msg.SourceName)
		lengths = append(lengths, msg.Len())
		allIDs = append(allIDs, msg.DetectorIDs...)
	}
	assert.Equal(t, []int{4, 4, 2}, lengths)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, allIDs)

	assert.Equal(t, uint64(3), report.MessagesSent)
	assert.Equal(t, int64(10), report.EventsSent)
	assert.Equal(t, flow.Done, report.State)
	assert.Nil(t, report.FailedChunk)
	assert.Equal(t, "run-1", report.RunID)
}

func TestRunRepeatsPasses(t *testing.T) {
	tx := &testutil.Transmitter{}
	cfg := testConfig(3)
	cfg.Flow.Repeat = 2
	g := newGenerator(t, cfg, tx)

	report, err := g.Run(context.Background(), testutil.SequentialBatch(t, 6))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), report.MessagesSent)
	assert.Equal(t, int64(12), report.EventsSent)

	last, err := wire.Decode(tx.Sent()[3].Buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last.MessageID)
	assert.Equal(t, []int64{4, 5, 6}, last.DetectorIDs)
}

func TestRunEncodesDeterministically(t *testing.T) {
	run := func(clock func() time.Time) []testutil.Sent {
		tx := &testutil.Transmitter{}
		cfg := testConfig(4)
		cfg.Flow.Repeat = 2
		g := newGenerator(t, cfg, tx, WithClock(clock))
		_, err := g.Run(context.Background(), testutil.SequentialBatch(t, 4))
		require.NoError(t, err)
		return tx.Sent()
	}

	first := run(time.Now)
	second := run(func() time.Time { return time.Now().Add(time.Hour) })
	require.Len(t, first, 2)
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].Buf, second[i].Buf, "message %d", i)
	}

	pass0, err := wire.Decode(first[0].Buf)
	require.NoError(t, err)
	pass1, err := wire.Decode(first[1].Buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), pass0.PulseTime)
	assert.Equal(t, uint64(1)<<32|1000, pass1.PulseTime)
}

func TestRunEmptyBatch(t *testing.T) {
	tx := &testutil.Transmitter{}
	g := newGenerator(t, testConfig(4), tx)

	empty, err := events.New(0)
	require.NoError(t, err)

	report, err := g.Run(context.Background(), empty)
	require.NoError(t, err)
	assert.Zero(t, tx.Calls())
	assert.Zero(t, report.MessagesSent)
	assert.Equal(t, flow.Done, report.State)
}

func TestRunAbortsOnFailure(t *testing.T) {
	tx := &testutil.Transmitter{
		FailAt: 2,
		Err:    nerrors.Transmission(errors.New("broker unreachable"), false, "failed to produce message"),
	}
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	g := newGenerator(t, testConfig(2), tx, WithMetrics(collector))

	report, err := g.Run(context.Background(), testutil.SequentialBatch(t, 10))
	require.Error(t, err)

	assert.Equal(t, 2, tx.Calls(), "no chunk after the failed one is attempted")
	assert.Len(t, tx.Sent(), 1)
	assert.Equal(t, flow.Faulted, report.State)
	require.NotNil(t, report.FailedChunk)
	assert.Equal(t, uint64(1), report.FailedChunk.Seq)
	assert.Equal(t, 2, report.FailedChunk.Offset)
	assert.Equal(t, uint64(1), report.MessagesSent)

	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeTransmission))
	assert.False(t, nerrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "chunk 1 failed")

	assert.Equal(t, 1.0, promtest.ToFloat64(collector.MessagesSent))
	assert.Equal(t, 2.0, promtest.ToFloat64(collector.EventsSent))
	assert.Equal(t, 1.0, promtest.ToFloat64(collector.SendFailures.WithLabelValues("false")))
}

type failingSerializer struct{}

func (failingSerializer) Format() string { return "broken" }

func (failingSerializer) Encode(wire.Message) ([]byte, error) {
	return nil, nerrors.New(nerrors.ErrorTypeEncoding, "cannot encode")
}

func TestRunEncodeFailure(t *testing.T) {
	tx := &testutil.Transmitter{}
	g, err := New(testConfig(4), failingSerializer{}, tx, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	report, err := g.Run(context.Background(), testutil.SequentialBatch(t, 4))
	require.Error(t, err)
	assert.Zero(t, tx.Calls())
	assert.Equal(t, flow.Faulted, report.State)
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeEncoding))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tx := &testutil.Transmitter{OnSend: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	g := newGenerator(t, testConfig(1), tx)

	report, err := g.Run(ctx, testutil.SequentialBatch(t, 5))
	require.Error(t, err)
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeCancelled))
	assert.Equal(t, flow.Faulted, report.State)
	assert.Equal(t, 2, tx.Calls())
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tx := &testutil.Transmitter{}
	g := newGenerator(t, testConfig(4), tx)

	_, err := g.Run(ctx, testutil.SequentialBatch(t, 4))
	require.Error(t, err)
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeCancelled))
	assert.Zero(t, tx.Calls())
}

func TestRunDurationBudget(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	var ticks time.Duration
	clock := func() time.Time {
		ticks += time.Second
		return base.Add(ticks)
	}

	tx := &testutil.Transmitter{}
	cfg := testConfig(1)
	cfg.Flow.Repeat = 1000
	cfg.Flow.Duration = 10 * time.Second
	g := newGenerator(t, cfg, tx, WithClock(clock))

	report, err := g.Run(context.Background(), testutil.SequentialBatch(t, 3))
	require.NoError(t, err)
	assert.Equal(t, flow.Done, report.State)
	assert.Greater(t, tx.Calls(), 0)
	assert.Less(t, tx.Calls(), 3000)
}

func TestRunThroughKafka(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	for i := 0; i < 3; i++ {
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != "detector_events" {
				return errors.New("unexpected topic " + msg.Topic)
			}
			return nil
		})
	}

	kt := transport.NewKafkaTransmitterWithProducer(producer, "neventgen", transport.Options{
		RunID:  "run-1",
		Format: config.FormatEV42,
		Logger: zaptest.NewLogger(t),
	})
	g := newGenerator(t, testConfig(4), kt)

	report, err := g.Run(context.Background(), testutil.SequentialBatch(t, 10))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), report.MessagesSent)
	require.NoError(t, kt.Close())
}

func TestRunRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	tx := &testutil.Transmitter{
		FailAt: 2,
		Err:    nerrors.Transmission(errors.New("timeout"), true, "failed to produce message"),
	}
	g := newGenerator(t, testConfig(5), tx, WithTracer(tp.Tracer("test")))

	_, err := g.Run(context.Background(), testutil.SequentialBatch(t, 10))
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "generator.chunk", spans[0].Name())
	assert.Equal(t, "generator.chunk", spans[1].Name())
	assert.Equal(t, "generator.run", spans[2].Name())
	assert.Equal(t, spans[2].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.NotEmpty(t, spans[1].Events())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, wire.FlatBufferSerializer{}, &testutil.Transmitter{})
	assert.Error(t, err)
	_, err = New(testConfig(1), nil, &testutil.Transmitter{})
	assert.Error(t, err)

	g, err := New(testConfig(1), wire.JSONSerializer{}, &testutil.Transmitter{})
	require.NoError(t, err)
	assert.NotEmpty(t, g.RunID())
}

func TestRunThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping throughput check in short mode")
	}
	batch := testutil.SequentialBatch(t, 200_000)
	g := newGenerator(t, testConfig(1000), &testutil.Transmitter{})

	testutil.NewPerformanceTest(t, "flatbuffers to in-memory transmitter").
		WithThroughputTarget(100_000).
		WithMemoryTarget(64 << 20).
		Run(func() (int64, time.Duration) {
			report, err := g.Run(context.Background(), batch)
			require.NoError(t, err)
			return report.EventsSent, report.Duration
		})
}
