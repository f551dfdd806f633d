package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/bottlecaps/config"
	"github.com/cppla/bottlecaps/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
	mu      sync.Mutex
}

var (
	limiters   = map[string]*rateLimiter{}
	limitersMu sync.Mutex
)

// RateLimitMiddleware applies a simple IP based rate limiter using a token bucket.
// A non-positive RateLimitPerMinute disables it.
func RateLimitMiddleware() gin.HandlerFunc {
	return RateLimit("ip", config.Get().RateLimitPerMinute, ClientIP)
}

// ClaimRateLimit throttles claim attempts per user on top of the IP limiter.
func ClaimRateLimit(perMinute int) gin.HandlerFunc {
	return RateLimit("claim", perMinute, func(c *gin.Context) string {
		if id := c.GetString(ContextUserIDKey); id != "" {
			return id
		}
		return ClientIP(c)
	})
}

// RateLimit keys a token bucket per request using keyFn. Buckets sharing a
// scope share one table, so distinct scopes never collide.
func RateLimit(scope string, perMinute int, keyFn func(*gin.Context) string) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(ctx *gin.Context) { ctx.Next() }
	}
	r := rate.Every(time.Minute / time.Duration(perMinute))
	burst := max(perMinute/2, 1)

	return func(ctx *gin.Context) {
		limiter := getLimiter(scope+":"+keyFn(ctx), r, burst)

		limiter.mu.Lock()
		allowed := limiter.limiter.Allow()
		limiter.mu.Unlock()

		if !allowed {
			utils.Error(ctx, 429, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

func getLimiter(key string, limit rate.Limit, burst int) *rateLimiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	cleanupExpiredLimitersLocked()

	if limiter, ok := limiters[key]; ok {
		limiter.expires = time.Now().Add(5 * time.Minute)
		return limiter
	}

	limiter := &rateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		expires: time.Now().Add(5 * time.Minute),
	}
	limiters[key] = limiter
	return limiter
}

func cleanupExpiredLimitersLocked() {
	now := time.Now()
	for key, limiter := range limiters {
		if now.After(limiter.expires) {
			delete(limiters, key)
		}
	}
}

