package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sidechain/feedengine/internal/util"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	correlationKey      = "correlation_id"
)

// CorrelationMiddleware tags the request with a correlation id that spans
// several requests of one client interaction. It falls back to the request
// id and travels in baggage so background work (coalescer batches, advisor
// writes) can log it. Run it after RequestIDMiddleware and TracingMiddleware.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = util.GetRequestID(c)
		}
		if correlationID == "" {
			c.Next()
			return
		}

		c.Set(correlationKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			span.SetAttributes(
				attribute.String("trace.correlation_id", correlationID),
				attribute.String("request.id", util.GetRequestID(c)),
			)
		}

		ctx := c.Request.Context()
		if member, err := baggage.NewMember(correlationKey, correlationID); err == nil {
			bag, err := baggage.FromContext(ctx).SetMember(member)
			if err == nil {
				ctx = baggage.ContextWithBaggage(ctx, bag)
			}
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetCorrelationIDFromContext extracts the correlation id from baggage
func GetCorrelationIDFromContext(ctx context.Context) string {
	return baggage.FromContext(ctx).Member(correlationKey).Value()
}
