package relay

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter

	// Configuration
	limit rate.Limit
	burst int
	ttl   time.Duration

	// Metrics
	allowed int64
	denied  int64
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter allowing requests per window seconds
// for each client, with the given burst.
func NewRateLimiter(requests, window, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(float64(requests) / float64(window)),
		burst:    burst,
		ttl:      10 * time.Minute,
	}
}

func (rl *RateLimiter) get(client string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// Allow reports whether client may make a request now. When it may not, the
// returned duration is how long until a token is available.
func (rl *RateLimiter) Allow(client string) (bool, time.Duration) {
	now := time.Now()
	limiter := rl.get(client, now)

	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		atomic.AddInt64(&rl.denied, 1)
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		atomic.AddInt64(&rl.denied, 1)
		return false, delay
	}
	atomic.AddInt64(&rl.allowed, 1)
	return true, 0
}

// Stats returns rate limiter statistics.
func (rl *RateLimiter) Stats() (allowed, denied int64) {
	return atomic.LoadInt64(&rl.allowed), atomic.LoadInt64(&rl.denied)
}

// Cleanup drops limiters for clients idle longer than the TTL.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.ttl)
	removed := 0
	for client, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, client)
			removed++
		}
	}
	return removed
}

// RateLimitMiddleware enforces the per-client limit on provider routes.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, _, ok := splitProviderPath(r.URL.Path); !ok {
				next.ServeHTTP(w, r)
				return
			}

			if ok, wait := limiter.Allow(clientAddr(r)); !ok {
				writeRateLimitError(w, wait)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr returns the remote IP without the port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(errorBody("Request rate limit exceeded. Please slow down your requests."))
}
