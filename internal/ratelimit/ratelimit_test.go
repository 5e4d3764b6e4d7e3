package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllow_UnderLimit(t *testing.T) {
	rl := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("Fourth request should be rejected")
	}
}

func TestAllow_PerAddress(t *testing.T) {
	rl := New(1, time.Minute)

	if !rl.Allow("1.2.3.4") {
		t.Error("First address should be allowed")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("Second address has its own bucket")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("First address is over its limit")
	}
}

func TestAllow_WindowReset(t *testing.T) {
	rl := New(1, 10*time.Millisecond)

	if !rl.Allow("1.2.3.4") {
		t.Fatal("First request should be allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("Second request inside window should be rejected")
	}

	time.Sleep(15 * time.Millisecond)

	if !rl.Allow("1.2.3.4") {
		t.Error("Request after window reset should be allowed")
	}
}

func TestAllow_ZeroLimit(t *testing.T) {
	rl := New(0, time.Minute)
	if rl.Allow("1.2.3.4") {
		t.Error("Zero limit should reject everything")
	}
}

func TestMiddleware(t *testing.T) {
	handler := Middleware(New(1, time.Minute))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "1.2.3.4:5555"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
}
