package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter decides whether a request identified by key may proceed right
// now. Rate limiting sits behind this interface rather than a concrete
// dependency so the in-process token bucket can be swapped for a shared
// store later without touching the handlers.
type RateLimiter interface {
	Allow(key string) bool
}

// tokenBucket is a per-key fixed-rate token bucket, refilled continuously at
// rate tokens per period. It is the package's only RateLimiter implementation.
type tokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucketState

	capacity   float64
	refillRate float64 // tokens per second
}

type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

// newTokenBucket builds a limiter allowing up to capacity requests per
// period for each distinct key, refilling continuously rather than resetting
// in hard windows.
func newTokenBucket(capacity int, period time.Duration) *tokenBucket {
	return &tokenBucket{
		buckets:    map[string]*bucketState{},
		capacity:   float64(capacity),
		refillRate: float64(capacity) / period.Seconds(),
	}
}

func (b *tokenBucket) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, ok := b.buckets[key]
	if !ok {
		state = &bucketState{tokens: b.capacity - 1, lastRefill: now}
		b.buckets[key] = state
		return true
	}

	elapsed := now.Sub(state.lastRefill).Seconds()
	state.tokens += elapsed * b.refillRate
	if state.tokens > b.capacity {
		state.tokens = b.capacity
	}
	state.lastRefill = now

	if state.tokens < 1 {
		return false
	}
	state.tokens--
	return true
}

// rateLimitMiddleware rejects with 429 once limiter.Allow(key) reports the
// per-source-IP quota is spent.
func rateLimitMiddleware(limiter RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(sourceIP(r)) {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"success": false,
					"message": "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sourceIP extracts the request's source IP, preferring RemoteAddr's host
// part and falling back to the raw value if it isn't in host:port form.
func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
