package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"resume-pipeline/internal/shared/server/respond"
)

// RateLimitRule is a token bucket: Rate tokens per second up to Burst.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

// Enabled reports whether the rule limits anything.
func (r RateLimitRule) Enabled() bool {
	return r.Rate > 0 && r.Burst > 0
}

// RateLimiter keeps one bucket per key.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	tokens float64
	last   time.Time
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		buckets: make(map[string]*rateBucket),
		now:     now,
	}
}

// RateLimit throttles run submissions per client IP. A disabled rule lets
// every request through.
func RateLimit(rule RateLimitRule, limiter *RateLimiter) gin.HandlerFunc {
	if limiter == nil {
		limiter = NewRateLimiter(nil)
	}
	return func(c *gin.Context) {
		if !rule.Enabled() {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.ClientIP())
		allowed, retryAfter := limiter.Allow(key, rule)
		if allowed {
			c.Next()
			return
		}
		seconds := int(math.Ceil(retryAfter.Seconds()))
		if seconds <= 0 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "Too many run submissions", gin.H{
			"retry_after_ms": retryAfter.Milliseconds(),
		})
	}
}

// Allow takes a token for key, or reports how long until one is available.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || !rule.Enabled() {
		return true, 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &rateBucket{tokens: float64(rule.Burst), last: now}
		l.buckets[key] = bucket
	}
	if elapsed := now.Sub(bucket.last).Seconds(); elapsed > 0 {
		bucket.tokens = math.Min(float64(rule.Burst), bucket.tokens+elapsed*rule.Rate)
		bucket.last = now
	}
	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, 0
	}
	wait := (1 - bucket.tokens) / rule.Rate
	return false, time.Duration(math.Ceil(wait*1000)) * time.Millisecond
}
