package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookworms/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMemoryLimiter_Window(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newMemoryLimiter()
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a", 2, time.Minute))
	assert.True(t, l.allow("a", 2, time.Minute))
	assert.False(t, l.allow("a", 2, time.Minute))
	assert.True(t, l.allow("b", 2, time.Minute))

	now = now.Add(61 * time.Second)
	assert.True(t, l.allow("a", 2, time.Minute))
}

func TestRateLimit_FallsBackToMemory(t *testing.T) {
	require.Nil(t, redisClient)

	r := gin.New()
	r.GET("/x", RateLimit("test", 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestJWT(t *testing.T) {
	service.InitJWT("test-secret")

	r := gin.New()
	r.GET("/p", JWT(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt64(UserIDKey)})
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)

	member, err := service.GenerateJWT(5, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do("Bearer "+member).Code)

	admin, err := service.GenerateJWT(7, true)
	require.NoError(t, err)
	w := do("Bearer " + admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7}`, w.Body.String())
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("https://panel.example.com"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://panel.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://panel.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
