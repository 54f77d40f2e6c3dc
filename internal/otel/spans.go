package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for coordination-plane spans.
var (
	AttrDaemon       = attribute.Key("shraga.daemon")
	AttrTaskID       = attribute.Key("shraga.task.id")
	AttrTable        = attribute.Key("shraga.directory.table")
	AttrRowID        = attribute.Key("shraga.directory.row_id")
	AttrUserEmail    = attribute.Key("shraga.user.email")
	AttrDevBox       = attribute.Key("shraga.devbox.name")
	AttrPhase        = attribute.Key("shraga.phase.name")
	AttrTokensInput  = attribute.Key("shraga.llm.tokens.input")
	AttrTokensOutput = attribute.Key("shraga.llm.tokens.output")
	AttrSessionID    = attribute.Key("shraga.llm.session_id")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartServerSpan starts a span for an inbound request handled by this daemon.
func StartServerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartClientSpan starts a span for an outbound call (directory store,
// provisioning API, LLM CLI subprocess).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
