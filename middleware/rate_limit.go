package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/qaforum/utils"
)

const (
	limiterIdleTTL     = 5 * time.Minute
	limiterSweepPeriod = time.Minute
)

type visitor struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimiter hands out one token bucket per client key.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute requests per key with a burst of half that.
func NewRateLimiter(perMinute int) *RateLimiter {
	perMinute = max(perMinute, 1)
	return &RateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		visitors: map[string]*visitor{},
		now:      time.Now,
	}
}

// Allow consumes a token for key.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterSweepPeriod {
		for k, v := range l.visitors {
			if now.After(v.expires) {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok || now.After(v.expires) {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.expires = now.Add(limiterIdleTTL)
	return v.limiter.Allow()
}

// RateLimitMiddleware applies an IP based token bucket and answers 429 when it runs dry.
func RateLimitMiddleware(l *RateLimiter) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if l.Allow(ctx.ClientIP()) {
			ctx.Next()
			return
		}
		utils.Sugar.Warnw("rate limit exceeded", "ip", ctx.ClientIP(), "path", ctx.Request.URL.Path)
		utils.AbortError(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
