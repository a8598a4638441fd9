package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

func TestInitExportsSpans(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultTracingConfig("test")
	cfg.Writer = &out
	cfg.PrettyPrint = false

	shutdown, err := Init(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
	})

	ctx, span := Tracer("test").Start(context.Background(), "generator.run")
	headers := InjectHeaders(ctx)
	End(span, nil)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), `"Name":"generator.run"`)
	assert.Contains(t, headers, "traceparent")
}

func TestEndRecordsFailure(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	End(ok, nil)
	_, failed := tp.Tracer("test").Start(context.Background(), "failed")
	End(failed, nerrors.Transmission(errors.New("broker down"), true, "send failed"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "exception", spans[1].Events()[0].Name)
}

func TestInjectHeadersWithoutSpan(t *testing.T) {
	assert.NotContains(t, InjectHeaders(context.Background()), "traceparent")
}
