package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveLimited(limiter *RateLimiter, key, clientIP string) int {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/rpc", nil)
	if clientIP != "" {
		req.Header.Set("X-Real-IP", clientIP)
	}
	recorder := httptest.NewRecorder()
	limiter.Middleware(key)(next).ServeHTTP(recorder, req)
	return recorder.Code
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"rpc": {RequestsPerMinute: 60, Burst: 2},
	}, nil)

	if code := serveLimited(limiter, "rpc", "10.0.0.1"); code != http.StatusNoContent {
		t.Fatalf("first request: got %d", code)
	}
	if code := serveLimited(limiter, "rpc", "10.0.0.1"); code != http.StatusNoContent {
		t.Fatalf("second request: got %d", code)
	}
	if code := serveLimited(limiter, "rpc", "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"rpc": {RequestsPerMinute: 60, Burst: 1},
	}, nil)

	if code := serveLimited(limiter, "rpc", "10.0.0.1"); code != http.StatusNoContent {
		t.Fatalf("client A first request: got %d", code)
	}
	if code := serveLimited(limiter, "rpc", "10.0.0.2"); code != http.StatusNoContent {
		t.Fatalf("client B should have its own bucket, got %d", code)
	}
	if code := serveLimited(limiter, "rpc", "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("client A should be limited, got %d", code)
	}
}

func TestRateLimiterUnknownKeyPassesThrough(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{}, nil)
	for i := 0; i < 5; i++ {
		if code := serveLimited(limiter, "unconfigured", "10.0.0.1"); code != http.StatusNoContent {
			t.Fatalf("unconfigured route should never limit, got %d", code)
		}
	}
}

func TestClientIDPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4444"
	if got := clientID(req); got != "192.0.2.10" {
		t.Fatalf("remote addr fallback: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.7" {
		t.Fatalf("forwarded-for: got %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.9")
	if got := clientID(req); got != "198.51.100.9" {
		t.Fatalf("real-ip should win: got %q", got)
	}
}
