package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcbuild/internal/cache"
	"pcbuild/pkg/jwt"
	"pcbuild/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuthMiddleware(t *testing.T) {
	tokens := jwt.NewJWTService("a-test-secret-that-is-long-enough!", time.Minute, time.Hour)
	store := cache.NewMemoryCache(time.Hour)

	r := gin.New()
	r.GET("/me", AuthMiddleware(tokens, store), func(c *gin.Context) {
		_, exp, ok := GetToken(c)
		assert.True(t, ok)
		assert.False(t, exp.IsZero())
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "username": GetUsername(c)})
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	access, err := tokens.GenerateAccessToken(7, "ana")
	require.NoError(t, err)
	refresh, err := tokens.GenerateRefreshToken(7, "ana")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Token "+access).Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer "+refresh).Code)

	w := do("Bearer " + access)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7,"username":"ana"}`, w.Body.String())

	require.NoError(t, store.BlacklistToken(context.Background(), jwt.HashToken(access), time.Now().Add(time.Minute)))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer "+access).Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(DefaultCORSConfig("https://app.example.com")))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	assert.False(t, DefaultCORSConfig().AllowCredentials)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	// 每秒补充一个
	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))

	r := gin.New()
	r.Use(NewRateLimiter(60, 1).Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLoggerMiddlewareSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(LoggerMiddleware(nopLogger()), RecoveryMiddleware(nopLogger()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(HeaderRequestID, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))
}

func nopLogger() *logger.Logger { return logger.NewNop() }
