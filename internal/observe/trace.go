package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/comedyhour"

// Span attribute keys shared by the exchange spans.
const (
	AttrInitiator  = attribute.Key("initiator")
	AttrResponder  = attribute.Key("responder")
	AttrMaxTurns   = attribute.Key("max_turns")
	AttrTurns      = attribute.Key("turns")
	AttrStopReason = attribute.Key("stop_reason")
	AttrAgent      = attribute.Key("agent")
	AttrPeer       = attribute.Key("peer")
	AttrStreamed   = attribute.Key("streamed")
)

// StartSpan starts a span on the global tracer provider. The caller must
// end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// StartExchangeSpan starts a span for one bounded exchange between
// initiator and responder.
func StartExchangeSpan(ctx context.Context, name, initiator, responder string, maxTurns int) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(
		AttrInitiator.String(initiator),
		AttrResponder.String(responder),
		AttrMaxTurns.Int(maxTurns),
	))
}

// Fail marks span as failed with err and returns err unchanged, so it can
// wrap a return statement.
func Fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// CorrelationID is the trace ID of the span in ctx, or "" without one. The
// web UI echoes it in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger, tagged with trace_id and span_id when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
