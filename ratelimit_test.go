package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiterPerClient(t *testing.T) {
	t.Parallel()

	rl := NewIPRateLimiter(2, time.Hour)
	defer rl.Stop()

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request inside the window should be refused")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("a different client has its own budget")
	}
	if rl.Len() != 2 {
		t.Errorf("tracked clients = %d, want 2", rl.Len())
	}
}

func TestIPRateLimiterCleanup(t *testing.T) {
	t.Parallel()

	rl := NewIPRateLimiter(1, time.Minute)
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.cleanup(time.Now())
	if rl.Len() != 1 {
		t.Fatal("recent visitor should be kept")
	}
	rl.cleanup(time.Now().Add(2 * time.Minute))
	if rl.Len() != 0 {
		t.Error("idle visitor should be forgotten")
	}
	if !rl.Allow("10.0.0.1") {
		t.Error("forgotten visitor starts with a full bucket")
	}
}

func TestIPRateLimiterStopTwice(t *testing.T) {
	t.Parallel()

	rl := NewIPRateLimiter(1, time.Minute)
	rl.Stop()
	rl.Stop()
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	r.RemoteAddr = "192.168.1.50:51234"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(r, false); got != "192.168.1.50" {
		t.Errorf("direct clientIP = %q", got)
	}
	if got := clientIP(r, true); got != "203.0.113.9" {
		t.Errorf("proxied clientIP = %q", got)
	}
	if got := extractIPFromAddr("not-an-addr"); got != "not-an-addr" {
		t.Errorf("extractIPFromAddr fallback = %q", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	rl := NewIPRateLimiter(1, time.Hour)
	defer rl.Stop()
	h := rl.Middleware(false, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}
