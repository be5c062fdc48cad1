package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"pcbuild/pkg/response"
)

// RateLimiter 按 key（用户 ID 或客户端 IP）限流
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 每分钟 perMinute 次，允许 burst 次突发
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		idle:     10 * time.Minute,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow 判断 key 的这次请求是否放行
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	v, ok := r.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[key] = v
	}
	v.lastSeen = now

	// 顺便清理长时间不活跃的 key
	if len(r.visitors) > 1024 {
		for k, other := range r.visitors {
			if now.Sub(other.lastSeen) > r.idle {
				delete(r.visitors, k)
			}
		}
	}
	return v.limiter.AllowN(now, 1)
}

// Middleware 已认证时按用户限流，否则按 IP
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID := GetUserID(c); userID != 0 {
			key = "user:" + strconv.FormatInt(userID, 10)
		}
		if !r.Allow(key) {
			response.ErrorWithCode(c, http.StatusTooManyRequests, response.CodeTooManyRequests, "too many requests, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
