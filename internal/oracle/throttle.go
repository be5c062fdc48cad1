package oracle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// throttled 进程内限流
// 令牌用完时直接返回 ErrRateLimited，不等待、不调用后端
type throttled struct {
	next    Oracle
	limiter *rate.Limiter
}

// Throttled 为后端加上每分钟请求数限制，perMinute <= 0 时不限流
func Throttled(o Oracle, perMinute, burst int) Oracle {
	if perMinute <= 0 {
		return o
	}
	if burst <= 0 {
		burst = 1
	}
	return &throttled{
		next:    o,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

func (t *throttled) CompleteConversation(ctx context.Context, req *Request) (string, error) {
	if !t.limiter.Allow() {
		return "", fmt.Errorf("%w: local request limit reached", ErrRateLimited)
	}
	return t.next.CompleteConversation(ctx, req)
}
