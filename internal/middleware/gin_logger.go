package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/util"
	"go.uber.org/zap"
)

// GinLoggerMiddleware logs one structured line per request, replacing gin.Logger
func GinLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			logger.WithIP(c.ClientIP()),
			logger.WithStatus(statusCode),
			zap.Int("response_size", c.Writer.Size()),
			logger.WithDuration(time.Since(startTime)),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if requestID := util.GetRequestID(c); requestID != "" {
			fields = append(fields, logger.WithRequestID(requestID))
		}
		if viewerID, ok := util.GetViewerID(c); ok {
			fields = append(fields, logger.WithViewerID(viewerID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case statusCode >= 500:
			logger.Log.Error("HTTP request", fields...)
		case statusCode >= 400:
			logger.Log.Warn("HTTP request", fields...)
		default:
			logger.Log.Info("HTTP request", fields...)
		}
	}
}
