package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/marcus/rxsync/internal/serverdb"
)

// Server is the HTTP API server for rxsync-server.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	metrics     *Metrics
	rateLimiter *RateLimiter
	hub         *Hub
	cancel      context.CancelFunc
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	if cfg.AuthDisabled {
		slog.Warn("authentication disabled: every request is accepted")
	}
	m := NewMetrics()
	s := &Server{
		config:      cfg,
		store:       store,
		metrics:     m,
		rateLimiter: NewRateLimiter(),
		hub:         NewHub(m),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.maintain(ctx)

	return nil
}

// maintain drops stale rate limit buckets and expired rate limit events.
func (s *Server) maintain(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("maintenance panic", "panic", r)
		}
	}()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rateLimiter.cleanup()
			n, err := s.store.CleanupRateLimitEvents(s.config.RateLimitEventRetention)
			if err != nil {
				slog.Error("cleanup rate limit events", "err", err)
			} else if n > 0 {
				slog.Info("cleaned up rate limit events", "count", n)
			}
		}
	}
}

// Shutdown disconnects change feed subscribers and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.Close()
	return s.http.Shutdown(ctx)
}

// Handler returns the routed handler, for serving from an httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Subscribers returns the number of connected change feed subscribers.
func (s *Server) Subscribers() int {
	return s.hub.count()
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Tables
	mux.HandleFunc("POST /v1/tables/{table}", s.requireAuth(s.withRateLimit(s.handleInsert, s.config.RateLimitWrite)))
	mux.HandleFunc("GET /v1/tables/{table}/lookup", s.requireAuth(s.withRateLimit(s.handleLookup, s.config.RateLimitRead)))
	mux.HandleFunc("GET /v1/tables/{table}/{id}", s.requireAuth(s.withRateLimit(s.handleGet, s.config.RateLimitRead)))
	mux.HandleFunc("PATCH /v1/tables/{table}/{id}", s.requireAuth(s.withRateLimit(s.handleUpdate, s.config.RateLimitWrite)))
	mux.HandleFunc("DELETE /v1/tables/{table}/{id}", s.requireAuth(s.withRateLimit(s.handleDelete, s.config.RateLimitWrite)))

	// Change feed
	mux.HandleFunc("GET /v1/changes", s.requireAuth(s.withRateLimit(s.handleChanges, s.config.RateLimitChanges)))

	return chain(mux, s.CORSMiddleware, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, maxBytesMiddleware(10<<20))
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
