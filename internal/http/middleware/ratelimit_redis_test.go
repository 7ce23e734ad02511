package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only if REDIS_ADDR is set.
func TestRedisRateLimit_ScopesCountSeparately(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	InitRedisRateLimiter(addr, os.Getenv("REDIS_PASSWORD"), db)
	require.NotNil(t, redisClient, "redis at %s not reachable", addr)
	t.Cleanup(CloseRedisRateLimiter)

	window := 3 * time.Second
	scope := "test-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	for _, s := range []string{scope + "-api", scope + "-auth"} {
		key := "bookworms:rl:" + s + ":3:192.0.2.1"
		t.Cleanup(func() { redisClient.Del(context.Background(), key) })
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", RateLimit(scope+"-api", 3, window))
	api.GET("/tasks", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.POST("/auth", RateLimit(scope+"-auth", 1, window), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/tasks"))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/tasks"))

	// The first login still passes: the api scope has not touched the auth counter.
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/auth"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, "/api/auth"))

	// Both /api/auth calls counted against the api scope too: 2 + 2 > 3.
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodGet, "/api/tasks"))
}
