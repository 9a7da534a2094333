package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sidechain/feedengine/internal/metrics"
)

// unmatchedRoute labels requests that hit no route, keeping raw paths out
// of label values.
const unmatchedRoute = "unmatched"

// MetricsMiddleware collects HTTP metrics for Prometheus, labelled by
// route template rather than raw path.
func MetricsMiddleware() gin.HandlerFunc {
	m := metrics.Get()

	return func(c *gin.Context) {
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}

		m.HTTPActiveConnections.WithLabelValues(method, path).Inc()
		defer m.HTTPActiveConnections.WithLabelValues(method, path).Dec()

		startTime := time.Now()
		c.Next()
		duration := time.Since(startTime).Seconds()

		// Numeric status so Grafana queries like status=~"5.." match
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		if size := c.Writer.Size(); size > 0 {
			m.HTTPResponseSize.WithLabelValues(method, path, status).Observe(float64(size))
		}
	}
}

// RecordRateLimitExceeded counts a rejected request
func RecordRateLimitExceeded(endpoint, method string) {
	metrics.Get().RateLimitExceededTotal.WithLabelValues(endpoint, method).Inc()
}

// RecordRateLimitError counts a limiter backend failure
func RecordRateLimitError(operation string) {
	metrics.Get().RateLimitErrorsTotal.WithLabelValues(operation).Inc()
}
