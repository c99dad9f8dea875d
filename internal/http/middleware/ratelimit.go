// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// In-memory token-bucket rate limiting keyed per caller (user id when
// authenticated, client IP otherwise). The router installs a global limiter
// and a stricter one on submission creation, since every accepted create
// lands in the admin review queue. Idempotent replays are never limited.
//
// The limiter is process-local; with several replicas each enforces its own
// budget.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

var rateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by a rate limiter, by limiter name.",
	},
	[]string{"limiter"},
)

func init() {
	prometheus.MustRegister(rateLimited)
}

// keyFunc selects the bucket for a request.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by "user:<id>" when Authenticate attached a user,
// else by "ip:<addr>".
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a set of per-key token buckets. Safe for concurrent use.
type RateLimiter struct {
	name     string
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter builds a limiter allowing rps tokens per second with the
// given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return NewNamedRateLimiter("global", rps, burst, keyFn)
}

// NewNamedRateLimiter is NewRateLimiter with a name for the metrics label.
func NewNamedRateLimiter(name string, rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		name:     name,
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the bucket for key. Every 5000 lookups it evicts
// buckets idle for ttl; eviction runs before the lookup so a stale bucket
// for key itself is replaced.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. Denied requests get 429 with Retry-After set
// to the whole seconds until a token is available (at least 1).
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		lim := rl.getVisitor(rl.keyFn(c))
		now := time.Now()
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(rl.name).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

// maxRetryAfter caps the advertised wait. A zero rate never refills, so the
// header would otherwise carry the limiter's infinite delay.
const maxRetryAfter = 3600

// retryAfter peeks at the wait for the next token without consuming it.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	if lim.Limit() == 0 {
		return 1
	}
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	if d == rate.InfDuration {
		return maxRetryAfter
	}
	secs := int(math.Ceil(d.Seconds()))
	switch {
	case secs < 1:
		secs = 1
	case secs > maxRetryAfter:
		secs = maxRetryAfter
	}
	return secs
}
