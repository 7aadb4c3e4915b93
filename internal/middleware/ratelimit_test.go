package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeClock lets tests step the limiter's time by hand.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(attempts int, window time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(attempts, window)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterBurstThenRefill(t *testing.T) {
	rl, clock := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("k"); !ok {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	ok, wait := rl.Allow("k")
	if ok {
		t.Fatal("4th attempt should be denied")
	}
	if wait < 19*time.Second || wait > 20*time.Second {
		t.Errorf("wait = %v, want about 20s", wait)
	}

	// A denied attempt does not consume a token.
	clock.t = clock.t.Add(21 * time.Second)
	if ok, _ := rl.Allow("k"); !ok {
		t.Error("one token should have refilled")
	}
	if ok, _ := rl.Allow("k"); ok {
		t.Error("only one token should have refilled")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)
	if ok, _ := rl.Allow("a"); !ok {
		t.Fatal("a should be allowed")
	}
	if ok, _ := rl.Allow("b"); !ok {
		t.Error("b should not share a's bucket")
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)
	rl.Allow("k")
	if ok, _ := rl.Allow("k"); ok {
		t.Fatal("second attempt should be denied")
	}
	rl.Reset("k")
	if ok, _ := rl.Allow("k"); !ok {
		t.Error("reset should refill the bucket")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := newTestLimiter(5, time.Minute)

	rl.Allow("idle")
	clock.t = clock.t.Add(2 * time.Minute)
	rl.Allow("active")

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["idle"]; ok {
		t.Error("idle key should have been cleaned up")
	}
	if _, ok := rl.visitors["active"]; !ok {
		t.Error("active key should still exist")
	}
}

func TestLoginKey(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"email", `{"email":" Cook@Example.com ","password":"x"}`, "192.0.2.1|cook@example.com"},
		{"no email", `{"password":"x"}`, "192.0.2.1"},
		{"not json", `email=cook`, "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/login", strings.NewReader(tt.body))
			if got := LoginKey(req); got != tt.want {
				t.Errorf("LoginKey = %q, want %q", got, tt.want)
			}
			rest, _ := io.ReadAll(req.Body)
			if string(rest) != tt.body {
				t.Errorf("body after LoginKey = %q, want it restored", rest)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(2, time.Minute)
	status := http.StatusUnauthorized
	handler := RateLimit(rl, LoginKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	login := func(email string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"email":"`+email+`"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := login("cook@example.com"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want %d", i+1, rec.Code, http.StatusUnauthorized)
		}
	}

	rec := login("cook@example.com")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd attempt: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30", got)
	}
	var body struct {
		Success    bool `json:"success"`
		RetryAfter int  `json:"retry_after"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.RetryAfter != 30 {
		t.Errorf("body = %+v", body)
	}

	if rec := login("other@example.com"); rec.Code != http.StatusUnauthorized {
		t.Errorf("other account: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRateLimitMiddlewareResetsOnSuccess(t *testing.T) {
	rl, _ := newTestLimiter(2, time.Minute)
	handler := RateLimit(rl, LoginKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"email":"cook@example.com"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("login %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}
	if n := rl.Len(); n != 0 {
		t.Errorf("tracked keys = %d, want 0", n)
	}
}
