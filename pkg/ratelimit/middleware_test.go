package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(cfg RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(cfg))
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func pingFrom(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":4321"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowsWithinBurst(t *testing.T) {
	router := newLimitedRouter(RateLimitConfig{
		RPS:             1,
		Burst:           3,
		CleanupInterval: time.Minute,
		MaxAge:          time.Minute,
	})

	for i := 0; i < 3; i++ {
		w := pingFrom(router, "10.0.0.1")
		require.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	}

	w := pingFrom(router, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestRateLimitIsPerClient(t *testing.T) {
	router := newLimitedRouter(RateLimitConfig{
		RPS:             1,
		Burst:           1,
		CleanupInterval: time.Minute,
		MaxAge:          time.Minute,
	})

	require.Equal(t, http.StatusOK, pingFrom(router, "10.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, pingFrom(router, "10.0.0.1").Code)

	// a different client gets its own bucket
	assert.Equal(t, http.StatusOK, pingFrom(router, "10.0.0.2").Code)
}
