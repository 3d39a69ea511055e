package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestWithSpan_RecordsError(t *testing.T) {
	rec := useRecorder(t)
	boom := errors.New("boom")

	err := WithSpan(context.Background(), "op", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "op", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
}

func TestWithSpan_Success(t *testing.T) {
	rec := useRecorder(t)

	var inner bool
	err := WithSpan(context.Background(), "op", func(ctx context.Context) error {
		inner = loggedTraceID(ctx) != ""
		return nil
	})
	require.NoError(t, err)
	assert.True(t, inner, "span is on the context passed to fn")

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestRecordError_NilIgnored(t *testing.T) {
	rec := useRecorder(t)
	_, span := StartSpan(context.Background(), "op")
	RecordError(span, nil)
	span.End()

	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, codes.Unset, rec.Ended()[0].Status().Code)
	assert.Empty(t, rec.Ended()[0].Events())
}

func TestLogger_WithoutSpan(t *testing.T) {
	assert.Empty(t, loggedTraceID(context.Background()))
}

func TestInitialize_Twice(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := DefaultConfig()
	require.NoError(t, Initialize(context.Background(), cfg))
	assert.Error(t, Initialize(context.Background(), cfg))
	require.NoError(t, Shutdown(context.Background()))
	require.NoError(t, Shutdown(context.Background()))
}

func TestInitialize_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExporterType = "zipkin"
	assert.Error(t, Initialize(context.Background(), cfg))
	require.NoError(t, Shutdown(context.Background()))
}

// loggedTraceID writes one entry through Logger and returns its trace_id.
func loggedTraceID(ctx context.Context) string {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	l := Logger(ctx, "test")
	l.Info().Msg("x")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		return ""
	}
	id, _ := entry["trace_id"].(string)
	return id
}
