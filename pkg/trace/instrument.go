package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentAgentRequest creates a span for an agent reply.
func InstrumentAgentRequest(ctx context.Context, provider, agentID, text string) (context.Context, trace.Span) {
	return StartSpan(ctx, "agent.reply",
		trace.WithAttributes(
			attribute.String(AttrAgentProvider, provider),
			attribute.String(AttrAgentID, agentID),
			attribute.Int(AttrTextLength, len(text)),
		),
	)
}

// InstrumentSTTRequest creates a span for a transcription request.
func InstrumentSTTRequest(ctx context.Context, provider string, audioSize int) (context.Context, trace.Span) {
	return StartSpan(ctx, "stt.request",
		trace.WithAttributes(
			attribute.String(AttrSTTProvider, provider),
			attribute.Int(AttrAudioSize, audioSize),
		),
	)
}

// InstrumentTTSRequest creates a span for a synthesis request.
func InstrumentTTSRequest(ctx context.Context, provider, voice, text string) (context.Context, trace.Span) {
	return StartSpan(ctx, "tts.request",
		trace.WithAttributes(
			attribute.String(AttrTTSProvider, provider),
			attribute.String(AttrTTSVoice, voice),
			attribute.Int(AttrTextLength, len(text)),
		),
	)
}
