package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sidechain/feedengine/internal/errors"
	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/metrics"
	"github.com/zfogg/sidechain/feedengine/internal/telemetry"
	"go.uber.org/zap"
)

// RespondWithAPIError logs apiErr by severity, reports server errors to
// Sentry and writes the error body.
func RespondWithAPIError(c *gin.Context, apiErr *errors.APIError) {
	fields := []zap.Field{
		zap.String("code", string(apiErr.Code)),
		zap.String("message", apiErr.Message),
		zap.String("field", apiErr.Field),
		logger.WithStatus(apiErr.Status),
		logger.WithRequestID(GetRequestID(c)),
		zap.String("path", c.FullPath()),
	}
	if cause := apiErr.Unwrap(); cause != nil {
		fields = append(fields, zap.Error(cause))
	}

	switch {
	case apiErr.Status >= http.StatusInternalServerError:
		logger.Log.Error("API error", fields...)
		metrics.Get().ErrorsTotal.WithLabelValues(string(apiErr.Code), c.FullPath()).Inc()
		telemetry.CaptureError(c.Request.Context(), apiErr, map[string]string{
			"code":       string(apiErr.Code),
			"path":       c.FullPath(),
			"request_id": GetRequestID(c),
		})
	case apiErr.Status >= http.StatusBadRequest:
		logger.Log.Warn("API error", fields...)
	}

	c.AbortWithStatusJSON(apiErr.Status, apiErr)
}

// RespondUnauthorized sends a 401 Unauthorized response
func RespondUnauthorized(c *gin.Context, message ...string) {
	msg := "authentication required"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.Unauthorized(msg))
}

// RespondNotFound sends a 404 Not Found response
func RespondNotFound(c *gin.Context, resource string) {
	RespondWithAPIError(c, errors.NotFound(resource))
}

// RespondValidationError sends a 400 naming the offending field
func RespondValidationError(c *gin.Context, field, message string) {
	RespondWithAPIError(c, errors.ValidationError(field, message))
}

// RespondInternalError sends a 500 Internal Server Error response
func RespondInternalError(c *gin.Context, err error) {
	RespondWithAPIError(c, errors.InternalError("internal server error").WithCause(err))
}
