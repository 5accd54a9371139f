package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubHandler is a simple handler that returns 200 OK.
var stubHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newCORSServer(origins []string) *Server {
	return &Server{
		config: Config{
			CORSAllowedOrigins: origins,
		},
	}
}

func corsRequest(handler http.Handler, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/v1/tables/drugs/1", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	handler := newCORSServer(nil).CORSMiddleware(stubHandler)

	w := corsRequest(handler, "GET", "https://pos.example.com")
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected no CORS headers when no origins configured")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCORS_NoOriginHeader(t *testing.T) {
	handler := newCORSServer([]string{"https://pos.example.com"}).CORSMiddleware(stubHandler)

	w := corsRequest(handler, "GET", "")
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected no CORS headers when no Origin header")
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	handler := newCORSServer([]string{"https://pos.example.com"}).CORSMiddleware(stubHandler)

	w := corsRequest(handler, "GET", "https://pos.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://pos.example.com" {
		t.Fatalf("expected Access-Control-Allow-Origin=https://pos.example.com, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, Content-Type, X-Rxsync-Device" {
		t.Fatalf("expected Allow-Headers, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PATCH, DELETE, OPTIONS" {
		t.Fatalf("expected Allow-Methods, got %q", got)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	handler := newCORSServer([]string{"https://pos.example.com"}).CORSMiddleware(stubHandler)

	w := corsRequest(handler, "GET", "https://evil.com")
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected no CORS headers for disallowed origin")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCORS_PreflightAllowed(t *testing.T) {
	handler := newCORSServer([]string{"https://pos.example.com"}).CORSMiddleware(stubHandler)

	w := corsRequest(handler, "OPTIONS", "https://pos.example.com")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for OPTIONS preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://pos.example.com" {
		t.Fatalf("expected CORS origin header on preflight, got %q", got)
	}
}

func TestCORS_WildcardOrigin(t *testing.T) {
	handler := newCORSServer([]string{"*"}).CORSMiddleware(stubHandler)

	w := corsRequest(handler, "GET", "https://branch-2.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://branch-2.example.com" {
		t.Fatalf("expected wildcard to allow any origin, got %q", got)
	}
}
