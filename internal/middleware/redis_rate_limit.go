package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sidechain/feedengine/internal/errors"
	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/util"
	"go.uber.org/zap"
)

// WindowCounter counts hits in a fixed window. cache.RedisClient implements it.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimiterConfig holds rate limiting configuration
type RateLimiterConfig struct {
	MaxRequests int
	Window      time.Duration
	// Timeout bounds each limiter round trip.
	Timeout time.Duration
}

// RedisRateLimitMiddleware creates a fixed-window limiter shared by every
// instance through Redis. Requests are keyed by viewer when authenticated
// and by client IP otherwise, so it must run after the auth middleware.
//
// The limiter fails open: with no counter configured, or when Redis errors,
// the request goes through and the failure is logged and counted.
func RedisRateLimitMiddleware(counter WindowCounter, cfg RateLimiterConfig) gin.HandlerFunc {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 200 * time.Millisecond
	}

	return func(c *gin.Context) {
		if counter == nil || cfg.MaxRequests <= 0 {
			c.Next()
			return
		}

		key := rateLimitKey(c)
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Timeout)
		count, ttl, err := counter.IncrWindow(ctx, key, cfg.Window)
		cancel()
		if err != nil {
			RecordRateLimitError("incr")
			logger.Log.Warn("Rate limiter unavailable, allowing request",
				zap.String("key", key),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if ttl <= 0 {
			ttl = cfg.Window
		}
		remaining := int64(cfg.MaxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(cfg.MaxRequests) {
			retryAfter := int(math.Ceil(ttl.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			RecordRateLimitExceeded(c.FullPath(), c.Request.Method)
			util.RespondWithAPIError(c, errors.RateLimited("rate limit exceeded").
				WithDetails(fmt.Sprintf("retry after %ds", retryAfter)))
			return
		}

		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if viewerID, ok := util.GetViewerID(c); ok {
		return "rate_limit:user:" + viewerID
	}
	return "rate_limit:ip:" + c.ClientIP()
}
