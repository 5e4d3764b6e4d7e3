package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type RateLimit interface {
	Allow(addr string) bool
}

type bucket struct {
	count       int
	windowStart time.Time
}

// FixedWindowLimiter allows maxRequests per address per window. Counters
// reset when a request arrives after the window has passed.
type FixedWindowLimiter struct {
	maxRequests int
	window      time.Duration
	buckets     map[string]*bucket
	mutex       sync.Mutex
}

func New(maxRequests int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		buckets:     make(map[string]*bucket),
	}
}

func (rl *FixedWindowLimiter) Allow(addr string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	b := rl.buckets[addr]

	if b == nil || now.Sub(b.windowStart) > rl.window {
		if rl.maxRequests == 0 {
			return false
		}
		rl.buckets[addr] = &bucket{count: 1, windowStart: now}
		return true
	}

	if b.count >= rl.maxRequests {
		return false
	}
	b.count++
	return true
}

// Middleware rejects over-limit clients with 429, keyed by remote IP.
// License verification is the brute-forceable surface this guards.
func Middleware(limiter RateLimit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if !limiter.Allow(host) {
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
