package trace

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WithSpan runs fn inside a child span named spanName. A returned error is
// recorded on the span and passed through.
func WithSpan(ctx context.Context, spanName string, fn func(context.Context) error, opts ...trace.SpanStartOption) error {
	ctx, span := StartSpan(ctx, spanName, opts...)
	defer span.End()

	err := fn(ctx)
	RecordError(span, err)
	return err
}

// RecordError marks span as failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Logger returns the global logger tagged with module and, when ctx carries a
// sampled span, its trace and span ids.
func Logger(ctx context.Context, module string) zerolog.Logger {
	l := log.With().Str("module", module)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	return l.Logger()
}
