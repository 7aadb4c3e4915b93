package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RealIP extracts the client's real IP address, preferring Cloudflare's
// CF-Connecting-IP header, then X-Forwarded-For, and falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// maxLoginBody caps how much of a login body LoginKey buffers.
const maxLoginBody = 64 << 10

// LoginKey keys login attempts by client IP and the submitted email, so one
// address guessing passwords for many accounts is limited per account and
// one account is not locked out for every other client. Bodies without an
// email fall back to the IP alone. The body is restored for the handler.
func LoginKey(r *http.Request) string {
	ip := RealIP(r)
	if r.Body == nil {
		return ip
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ip
	}
	var req struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &req) != nil {
		return ip
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return ip
	}
	return ip + "|" + email
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out a token bucket per key. Each bucket holds attempts
// tokens and refills completely over window.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	attempts int
	window   time.Duration
	now      func() time.Time
}

func NewRateLimiter(attempts int, window time.Duration) *RateLimiter {
	if attempts < 1 {
		attempts = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		attempts: attempts,
		window:   window,
		now:      time.Now,
	}
}

// Allow takes one token for key. When the bucket is empty it reports how
// long until the next token arrives.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		every := rate.Every(rl.window / time.Duration(rl.attempts))
		v = &visitor{limiter: rate.NewLimiter(every, rl.attempts)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, rl.window
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Reset forgets key, refilling its bucket.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.visitors, key)
}

// Cleanup drops buckets idle for a full window. Those are full again, so
// forgetting them changes nothing.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}

// Len reports how many keys are tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// RateLimit returns middleware that rate-limits requests by a key function.
// A rejected request gets 429 with Retry-After in whole seconds, both as a
// header and as "retry_after" in the JSON body. A request the handler
// answers below 400 resets its key.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			ok, wait := limiter.Allow(key)
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"success":     false,
					"error":       "too many attempts, try again later",
					"retry_after": secs,
				})
				return
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status < http.StatusBadRequest {
				limiter.Reset(key)
			}
		})
	}
}
