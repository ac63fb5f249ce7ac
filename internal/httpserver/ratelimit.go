package httpserver

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/blackmichael/share-your-sound/internal/config"
	"github.com/blackmichael/share-your-sound/internal/metrics"
)

// RateLimiter hands out a token bucket per client IP. A client may burst up
// to the configured limit and then regains one request every window/limit.
type RateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	every       rate.Limit
	burst       int
	idle        time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing limit.Limit requests per
// limit.Window for each client.
func NewRateLimiter(limit config.RateLimit) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		every:    rate.Every(limit.Window / time.Duration(limit.Limit)),
		burst:    limit.Limit,
		idle:     limit.Window,
		now:      time.Now,
	}
}

// Reserve takes a token for key. When none is available it returns false and
// how long the client should wait.
func (rl *RateLimiter) Reserve(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanupLocked(now)

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, rl.idle
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// cleanupLocked forgets visitors idle for a full window; their bucket would
// be full again anyway.
func (rl *RateLimiter) cleanupLocked(now time.Time) {
	if now.Sub(rl.lastCleanup) < rl.idle {
		return
	}
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) >= rl.idle {
			delete(rl.visitors, key)
		}
	}
	rl.lastCleanup = now
}

// withRateLimit rejects requests over the client's budget with 429. clientKey
// picks the bucket for a request.
func withRateLimit(rl *RateLimiter, clientKey func(*http.Request) string, name, message string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.Reserve(clientKey(r))
		if !ok {
			metrics.RateLimitedTotal.WithLabelValues(name).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeJSON(w, http.StatusTooManyRequests, resultResponse{Success: false, Error: message})
			return
		}
		next(w, r)
	}
}
