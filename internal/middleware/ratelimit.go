package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/longtails/freemasons/pkg/response"
	"golang.org/x/time/rate"
)

const (
	limiterIdle     = 5 * time.Minute
	limiterSweepGap = 3 * time.Minute
)

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles callers by operator name once authenticated, by
// client IP before that. Manual syncs hit rate-limited upstream APIs, so this
// sits in front of them.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*callerLimiter
	rps      rate.Limit
	burst    int
}

// NewRateLimiter creates a RateLimiter whose idle entries are swept until
// ctx is done.
func NewRateLimiter(ctx context.Context, rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		limiters: make(map[string]*callerLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go rl.sweep(ctx)
	return rl
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.limiters[key]
	if !exists {
		limiter := rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[key] = &callerLimiter{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepGap)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.limiters {
		if now.Sub(v.lastSeen) > limiterIdle {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Middleware returns a Gin middleware that enforces the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if op := GetOperator(c); op != "" {
			key = "op:" + op
		}

		if !rl.getLimiter(key).Allow() {
			response.TooManyRequests(c, "too many requests, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}
