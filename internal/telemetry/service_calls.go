package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceStreamCall creates a client span for a Stream.io API call
func TraceStreamCall(ctx context.Context, operation, feed string, limit int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("stream.io").Start(ctx, "stream."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("stream.operation", operation),
			attribute.String("stream.feed_id", feed),
		),
	)
	if limit > 0 {
		span.SetAttributes(attribute.Int("stream.limit", limit))
	}
	return ctx, span
}

// RecordServiceError marks span failed when err is set
func RecordServiceError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "service_error"))
	}
}

// RecordServiceSuccess records the result size of a service call
func RecordServiceSuccess(span trace.Span, itemCount int) {
	span.SetAttributes(attribute.Int("result.item_count", itemCount))
	span.SetStatus(codes.Ok, "")
}
