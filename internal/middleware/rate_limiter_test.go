package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientRateLimiterBurst(t *testing.T) {
	limiter := NewClientRateLimiter(1, 2, time.Minute)

	if !limiter.Allow("1.2.3.4") || !limiter.Allow("1.2.3.4") {
		t.Fatal("expected the burst to be allowed")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatal("expected the third immediate request rejected")
	}
}

func TestClientRateLimiterPerKey(t *testing.T) {
	limiter := NewClientRateLimiter(1, 1, time.Minute)

	if !limiter.Allow("1.2.3.4") {
		t.Fatal("first key should be allowed")
	}
	if !limiter.Allow("5.6.7.8") {
		t.Fatal("a different key has its own bucket")
	}
}

func TestClientRateLimiterExpiresIdleVisitors(t *testing.T) {
	limiter := NewClientRateLimiter(1, 1, time.Millisecond).(*clientRateLimiter)

	current := time.Now()
	limiter.now = func() time.Time { return current }

	if !limiter.Allow("1.2.3.4") {
		t.Fatal("first request should be allowed")
	}

	current = current.Add(time.Second)
	limiter.Allow("other")

	limiter.mu.Lock()
	_, kept := limiter.visitors["1.2.3.4"]
	limiter.mu.Unlock()
	if kept {
		t.Fatal("expected idle visitor garbage collected")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewClientRateLimiter(1, 1, time.Minute)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "1.2.3.4:5678"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the limit is hit, got %d", rec.Code)
	}
}
