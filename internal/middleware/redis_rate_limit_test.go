package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sidechain/feedengine/internal/cache"
	"github.com/zfogg/sidechain/feedengine/internal/util"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *cache.RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := cache.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func limitedRouter(counter WindowCounter, max int) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-Viewer"); id != "" {
			c.Set(util.ContextKeyViewerID, id)
		}
	})
	router.Use(RedisRateLimitMiddleware(counter, RateLimiterConfig{MaxRequests: max, Window: time.Minute}))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func get(router *gin.Engine, viewer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if viewer != "" {
		req.Header.Set("X-Test-Viewer", viewer)
	}
	return serve(router, req)
}

func TestRateLimiterFixedWindow(t *testing.T) {
	mr, rc := newMiniredis(t)
	router := limitedRouter(rc, 3)

	for i := 0; i < 3; i++ {
		w := get(router, "")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
	}
	w := get(router, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, get(router, "").Code, "new window should reset the count")
}

func TestRateLimiterKeysByViewer(t *testing.T) {
	mr, rc := newMiniredis(t)
	router := limitedRouter(rc, 2)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, get(router, "alice").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(router, "alice").Code)
	assert.Equal(t, http.StatusOK, get(router, "bob").Code)

	assert.True(t, mr.Exists("rate_limit:user:alice"))
	ttl := mr.TTL("rate_limit:user:alice")
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}

func TestRateLimiterFailsOpenWhenRedisDown(t *testing.T) {
	mr, rc := newMiniredis(t)
	router := limitedRouter(rc, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(router, "").Code)
	}
}

type failingCounter struct{}

func (failingCounter) IncrWindow(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

func TestRateLimiterWithoutCounter(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(limitedRouter(nil, 1), "").Code)
	assert.Equal(t, http.StatusOK, get(limitedRouter(nil, 1), "").Code)
	assert.Equal(t, http.StatusOK, get(limitedRouter(failingCounter{}, 1), "").Code)
}
