package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/sidechain/feedengine/internal/util"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware returns otelgin followed by a handler that annotates
// the server span with the viewer and feed paging parameters once the rest
// of the chain has run. Install both with router.Use(TracingMiddleware(name)...).
func TracingMiddleware(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{otelgin.Middleware(serviceName), annotateSpan}
}

func annotateSpan(c *gin.Context) {
	c.Next()

	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	if viewerID, ok := util.GetViewerID(c); ok {
		span.SetAttributes(attribute.String("user.id", viewerID))
	}
	if limit := c.Query("limit"); limit != "" {
		span.SetAttributes(attribute.String("feed.limit", limit))
	}
	if c.Query("cursor") != "" {
		span.SetAttributes(attribute.Bool("feed.has_cursor", true))
	}
	if c.Writer.Status() >= 500 {
		span.SetStatus(codes.Error, "server error")
	}
	for _, ginErr := range c.Errors {
		span.RecordError(ginErr.Err)
	}
}
