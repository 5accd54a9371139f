package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter implements per-key fixed-window rate limiting.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count    int
	windowAt time.Time
}

// NewRateLimiter creates a RateLimiter. Stale buckets are dropped by the
// server's maintenance loop.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket)}
}

// Allow checks if the key is within the rate limit (limit per 1-minute window).
func (rl *RateLimiter) Allow(key string, limit int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.windowAt) >= time.Minute {
		rl.buckets[key] = &bucket{count: 1, windowAt: now}
		return true
	}
	if b.count >= limit {
		return false
	}
	b.count++
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-2 * time.Minute)
	for k, b := range rl.buckets {
		if b.windowAt.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

// withRateLimit wraps an authenticated handler with per-key rate limiting.
// Rejections are answered with 429, which clients treat as transient, and
// recorded in the store.
func (s *Server) withRateLimit(handler http.HandlerFunc, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev := getDeviceFromContext(r.Context())
		if dev == nil {
			handler(w, r)
			return
		}
		class := classifyEndpoint(r)
		key := fmt.Sprintf("key:%s:%s", dev.KeyID, class)
		if !s.rateLimiter.Allow(key, limit) {
			if err := s.store.InsertRateLimitEvent(dev.KeyID, clientIP(r), class); err != nil {
				logFor(r.Context()).Error("log rate limit event", "err", err)
			}
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
			return
		}
		handler(w, r)
	}
}

// classifyEndpoint returns the limit class of a request.
func classifyEndpoint(r *http.Request) string {
	if strings.HasPrefix(r.URL.Path, "/v1/changes") {
		return "changes"
	}
	if r.Method == http.MethodGet {
		return "read"
	}
	return "write"
}

// clientIP extracts the client IP from the request, checking X-Forwarded-For first.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
