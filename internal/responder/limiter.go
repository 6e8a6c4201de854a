package responder

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key. Buckets are rebuilt after ttl so
// that keys for finished jobs do not pin memory forever.
type Limiter struct {
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
	limiters sync.Map // key -> *cachedLimiter
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithTTL sets how long a key keeps its bucket.
func WithTTL(ttl time.Duration) LimiterOption {
	return func(l *Limiter) { l.ttl = ttl }
}

// NewLimiter allows perSecond requests per key with the given burst. A
// non-positive perSecond disables limiting.
func NewLimiter(perSecond float64, burst int, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		limit: rate.Limit(perSecond),
		burst: burst,
		ttl:   5 * time.Minute,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether a request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	return l.getOrCreate(key).Allow()
}

// Middleware limits requests by the key keyFn extracts. Requests without a key
// pass through.
func (l *Limiter) Middleware(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := keyFn(r); key != "" && !l.Allow(key) {
				w.Header().Set("Retry-After", "1")
				respondJSON(w, http.StatusTooManyRequests, errorBody("Too Many Requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func (l *Limiter) getOrCreate(key string) *rate.Limiter {
	now := l.now()
	if v, ok := l.limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if now.Before(cached.expiresAt) {
			return cached.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Store(key, &cachedLimiter{
		limiter:   limiter,
		expiresAt: now.Add(l.ttl),
	})
	return limiter
}
