package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter keeps one token bucket per client IP. Buckets idle for longer
// than ttl are swept on access.
type IPLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	trust bool

	mu        sync.Mutex
	buckets   map[string]*ipBucket
	lastSweep time.Time
	now       func() time.Time
}

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewIPLimiter(perSecond float64, burst int, ttl time.Duration, trustProxy bool) *IPLimiter {
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &IPLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     ttl,
		trust:   trustProxy,
		buckets: make(map[string]*ipBucket),
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (l *IPLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > l.ttl {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	l.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "unknown"
		if ip := ClientIP(r, l.trust); ip != nil {
			key = ip.String()
		}
		if ok, retry := l.Allow(key); !ok {
			writeRateLimited(w, retry)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
}
