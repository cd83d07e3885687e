package httpmiddleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// sweepEvery bounds how many Allow calls pass between idle-bucket sweeps.
const sweepEvery = 1024

// TokenBucket limits requests per client key. Buckets live in process
// memory; the intake runs as a single instance.
type TokenBucket struct {
	capacity int
	perToken time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int

	Now func() time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket allows bursts of capacity requests, refilled at perMinute
// tokens per minute. A zero capacity means a burst of perMinute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if perMinute <= 0 {
		perMinute = 60
	}
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity: capacity,
		perToken: time.Minute / time.Duration(perMinute),
		buckets:  make(map[string]*bucket),
		Now:      time.Now,
	}
}

// GinMiddleware rejects over-limit clients with 429 and a Retry-After hint.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		if !l.Allow(key) {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(l.perToken.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Allow takes one token from key's bucket.
func (l *TokenBucket) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.Now()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[key] = b
	}
	if earned := int(now.Sub(b.last) / l.perToken); earned > 0 {
		b.tokens = min(b.tokens+earned, l.capacity)
		b.last = b.last.Add(time.Duration(earned) * l.perToken)
	}
	if b.tokens >= l.capacity {
		b.last = now
	}
	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets that have been idle long enough to be full again.
func (l *TokenBucket) sweep(now time.Time) {
	full := time.Duration(l.capacity) * l.perToken
	for k, b := range l.buckets {
		if now.Sub(b.last) >= full {
			delete(l.buckets, k)
		}
	}
}

// Len reports how many client buckets are tracked.
func (l *TokenBucket) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
