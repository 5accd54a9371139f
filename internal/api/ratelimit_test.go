package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowDeny(t *testing.T) {
	rl := NewRateLimiter()

	// Should allow up to the limit
	for i := 0; i < 5; i++ {
		if !rl.Allow("k1", 5) {
			t.Fatalf("expected allow on request %d", i+1)
		}
	}

	// Should deny at the limit
	if rl.Allow("k1", 5) {
		t.Fatal("expected deny after limit reached")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		rl.Allow("k1", 3)
	}
	if rl.Allow("k1", 3) {
		t.Fatal("expected deny after limit")
	}

	// Simulate window expiry by backdating the bucket
	rl.mu.Lock()
	rl.buckets["k1"].windowAt = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	if !rl.Allow("k1", 3) {
		t.Fatal("expected allow after window reset")
	}
}

func TestRateLimiterKeyIsolation(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 2; i++ {
		rl.Allow("key1", 2)
	}
	if rl.Allow("key1", 2) {
		t.Fatal("expected key1 denied")
	}
	if !rl.Allow("key2", 2) {
		t.Fatal("expected key2 allowed")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter()

	rl.Allow("stale", 10)
	rl.Allow("fresh", 10)

	rl.mu.Lock()
	rl.buckets["stale"].windowAt = time.Now().Add(-5 * time.Minute)
	rl.mu.Unlock()

	rl.cleanup()

	rl.mu.Lock()
	_, hasStale := rl.buckets["stale"]
	_, hasFresh := rl.buckets["fresh"]
	rl.mu.Unlock()

	if hasStale {
		t.Fatal("expected stale entry to be cleaned up")
	}
	if !hasFresh {
		t.Fatal("expected fresh entry to remain")
	}
}

func TestClassifyEndpoint(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{"GET", "/v1/changes", "changes"},
		{"GET", "/v1/tables/drugs/4", "read"},
		{"GET", "/v1/tables/drugs/lookup", "read"},
		{"POST", "/v1/tables/drugs", "write"},
		{"PATCH", "/v1/tables/drugs/4", "write"},
		{"DELETE", "/v1/tables/drugs/4", "write"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, nil)
		if got := classifyEndpoint(r); got != tt.want {
			t.Errorf("classifyEndpoint(%s %s) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestWithRateLimitIntegration(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config) {
		cfg.RateLimitWrite = 3
	})

	for i := 0; i < 3; i++ {
		w := h.do("POST", "/v1/tables/suppliers", WriteRequest{Row: map[string]any{
			"client_id": "sup-" + string(rune('a'+i)),
			"name":      "Supplier " + string(rune('A'+i)),
		}})
		if w.StatusCode != http.StatusCreated {
			t.Fatalf("insert %d: expected 201, got %d", i+1, w.StatusCode)
		}
		w.Body.Close()
	}

	w := h.do("POST", "/v1/tables/suppliers", WriteRequest{Row: map[string]any{"client_id": "sup-z", "name": "Z"}})
	defer w.Body.Close()
	if w.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.StatusCode)
	}
	if w.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	events, err := h.Store.RecentRateLimitEvents(10)
	if err != nil {
		t.Fatalf("rate limit events: %v", err)
	}
	if len(events) != 1 || events[0].EndpointClass != "write" || events[0].KeyID != "static" {
		t.Fatalf("events = %+v", events)
	}

	// Reads have their own budget.
	r := h.do("GET", "/v1/tables/suppliers/lookup?client_id=sup-a", nil)
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("lookup after write limit: expected 200, got %d", r.StatusCode)
	}
}
