package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tutorcore"

// SpanContext wraps an OTel span for managed lifecycle. The dialog
// pipeline opens one span per stage (retrieve, analyze, generate), so
// a turn's trace shows the retrieval span closing before either LLM
// span opens.
type SpanContext struct {
	ctx  context.Context
	span trace.Span
}

// StartSpan opens a span as a child of the current trace context.
//
//	sc := logger.StartSpan(ctx, "tutorcore.dialog.retrieve")
//	defer sc.End()
//	ctx = sc.Context()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) *SpanContext {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &SpanContext{ctx: ctx, span: span}
}

// Context returns the context with the span attached. Use it for all
// operations within the span's scope.
func (sc *SpanContext) Context() context.Context {
	return sc.ctx
}

// End completes the span. Safe to call more than once.
func (sc *SpanContext) End() {
	if sc.span != nil {
		sc.span.End()
	}
}

// RecordError records an error on the span.
func (sc *SpanContext) RecordError(err error) {
	if sc.span != nil && err != nil {
		sc.span.RecordError(err)
	}
}

// Span exposes the underlying OTel span for attribute setting.
func (sc *SpanContext) Span() trace.Span {
	return sc.span
}
