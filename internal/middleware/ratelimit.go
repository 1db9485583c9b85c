package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"pledgr/internal/apperr"
	"pledgr/internal/metrics"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter allows each client IP a burst of requests per window, refilled
// evenly over the window.
type RateLimiter struct {
	name       string
	limit      rate.Limit
	burst      int
	window     time.Duration
	retryAfter time.Duration

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPrune time.Time
	now       func() time.Time
}

// NewRateLimiter allows requests per window for each client. A non-positive
// requests disables the limiter.
func NewRateLimiter(name string, requests int, window time.Duration) *RateLimiter {
	l := &RateLimiter{
		name:     name,
		burst:    requests,
		window:   window,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
	if requests > 0 && window > 0 {
		l.limit = rate.Limit(float64(requests) / window.Seconds())
		l.retryAfter = window / time.Duration(requests)
	}
	return l
}

func (l *RateLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *RateLimiter) enabled() bool {
	return l.burst > 0 && l.window > 0
}

// Allow reports whether key may make another request now.
func (l *RateLimiter) Allow(key string) bool {
	if !l.enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(c.ClientIP()) {
			c.Next()
			return
		}

		metrics.RecordRateLimited(l.name)
		seconds := int(math.Ceil(l.retryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "Too many requests, please try again later.",
			"code":  apperr.KindRateLimited,
		})
	}
}

// pruneLocked forgets clients idle for a whole window; their bucket is full
// again by then. l.mu must be held.
func (l *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.window {
		return
	}
	l.lastPrune = now
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.window {
			delete(l.visitors, key)
		}
	}
}
