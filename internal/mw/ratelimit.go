package mw

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an untouched bucket is kept before the janitor
// drops it.
const limiterIdle = 10 * time.Minute

// KeyFunc names the bucket a request draws from.
type KeyFunc func(c *gin.Context) string

// ByIP keys requests by client address. Used in front of login, where no
// session exists yet.
func ByIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// BySession keys requests by the portal session set by Authenticate, so
// students behind one campus NAT do not share a bucket. Without a session it
// falls back to ByIP.
func BySession(c *gin.Context) string {
	if sess, ok := CurrentSession(c); ok && sess.ID != "" {
		return "session:" + sess.ID
	}
	return ByIP(c)
}

// ClientLimiter hands out one token bucket per key. Buckets live in a
// go-cache so idle clients do not pile up.
type ClientLimiter struct {
	buckets *cache.Cache
	r       rate.Limit
	b       int
}

func NewClientLimiter(r rate.Limit, b int) *ClientLimiter {
	return &ClientLimiter{
		buckets: cache.New(limiterIdle, limiterIdle),
		r:       r,
		b:       b,
	}
}

// Limiter returns the bucket for key, creating it on first use. Every access
// pushes the bucket's expiry back.
func (l *ClientLimiter) Limiter(key string) *rate.Limiter {
	if v, found := l.buckets.Get(key); found {
		limiter := v.(*rate.Limiter)
		l.buckets.SetDefault(key, limiter)
		return limiter
	}

	limiter := rate.NewLimiter(l.r, l.b)
	if err := l.buckets.Add(key, limiter, cache.DefaultExpiration); err != nil {
		// Lost the race to a concurrent request for the same key.
		if v, found := l.buckets.Get(key); found {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// Len is the number of live buckets.
func (l *ClientLimiter) Len() int {
	return l.buckets.ItemCount()
}

// RetryAfter is the whole number of seconds until one token is available.
func (l *ClientLimiter) RetryAfter() int {
	if l.r <= 0 {
		return 1
	}
	return int(math.Ceil(1 / float64(l.r)))
}

// RateLimiter rejects requests over the per-key rate with 429.
func RateLimiter(l *ClientLimiter, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Limiter(key(c)).Allow() {
			c.Header("Retry-After", strconv.Itoa(l.RetryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
