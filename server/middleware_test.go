package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthDisabledPassesThrough(t *testing.T) {
	cfg := &authConfig{enabled: false}
	rec := httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/channels", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAdminAuthToken(t *testing.T) {
	cfg := &authConfig{enabled: true, adminToken: "secret"}

	req := httptest.NewRequest(http.MethodPost, "/channels", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec := httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/channels", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", rec.Code)
	}
}

func TestAdminAuthBasic(t *testing.T) {
	cfg := &authConfig{enabled: true, adminUsername: "admin", adminPassword: "pw"}

	req := httptest.NewRequest(http.MethodPost, "/channels", nil)
	req.SetBasicAuth("admin", "pw")
	rec := httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid creds: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/channels", nil)
	req.SetBasicAuth("admin", "nope")
	rec = httptest.NewRecorder()
	adminAuth(okHandler(), cfg).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad creds: status = %d", rec.Code)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:       true,
		requestsPerIP: 3,
		window:        time.Minute,
	})

	for i := 0; i < 3; i++ {
		if !limiter.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("1.2.3.4") {
		t.Error("4th request should be limited")
	}
	// Other IPs have their own window.
	if !limiter.allow("5.6.7.8") {
		t.Error("different IP should be allowed")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: false, requestsPerIP: 1, window: time.Minute})
	for i := 0; i < 10; i++ {
		if !limiter.allow("1.2.3.4") {
			t.Fatal("disabled limiter should always allow")
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, requestsPerIP: 1, window: time.Minute})
	handler := rateLimitMiddleware(okHandler(), limiter)

	req := httptest.NewRequest(http.MethodPost, "/chat/send", nil)
	req.RemoteAddr = "1.2.3.4:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestCORSPermissive(t *testing.T) {
	handler := withCORSConfig(okHandler(), &corsConfig{permissive: true})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected permissive CORS header")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/status", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
}

func TestCORSRestricted(t *testing.T) {
	handler := withCORSConfig(okHandler(), &corsConfig{
		permissive:     false,
		allowedOrigins: []string{"https://overlay.example.com", "*.example.org"},
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "https://overlay.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://overlay.example.com" {
		t.Error("allowed origin should be echoed")
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin should get no CORS headers")
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "https://sub.example.org")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://sub.example.org" {
		t.Error("wildcard subdomain should match")
	}
}
