package api

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/marcus/rxsync/internal/remote"
)

type contextKey int

const (
	ctxKeyAuthDevice contextKey = iota
	ctxKeyRequestID
	ctxKeyLogger
)

// AuthDevice identifies the caller of an authenticated request.
type AuthDevice struct {
	KeyID    string // device key id, or "static" for RXSYNC_API_KEYS
	Name     string
	DeviceID string // X-Rxsync-Device, may be empty
}

func getDeviceFromContext(ctx context.Context) *AuthDevice {
	d, _ := ctx.Value(ctxKeyAuthDevice).(*AuthDevice)
	return d
}

// getRequestID returns the request ID from the context.
func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// logFor returns the context-scoped logger, falling back to the default logger.
func logFor(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// loggerMiddleware creates a per-request logger with the request ID and stores it in the context.
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := slog.Default().With("rid", getRequestID(r.Context()))
		ctx := context.WithValue(r.Context(), ctxKeyLogger, l)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// metricsMiddleware records request counts and categorizes response status codes.
func metricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.RecordRequest()
			sc := &statusCapture{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sc, r)
			switch {
			case sc.code >= 500:
				m.RecordError()
			case sc.code >= 400:
				m.RecordClientError()
			}
		})
	}
}

// recoveryMiddleware catches panics and returns a 500 response.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logFor(r.Context()).Error("panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// generateRequestID creates a random hex string for request tracing.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// requestIDMiddleware generates a unique request ID and adds it to the context and response headers.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := generateRequestID()
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusCapture wraps ResponseWriter to capture the status code. It stays
// hijackable so the change feed can upgrade through the middleware chain.
type statusCapture struct {
	http.ResponseWriter
	code int
}

func (sc *statusCapture) WriteHeader(code int) {
	sc.code = code
	sc.ResponseWriter.WriteHeader(code)
}

func (sc *statusCapture) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sc.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sc.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (sc *statusCapture) Unwrap() http.ResponseWriter {
	return sc.ResponseWriter
}

// loggingMiddleware logs each request with method, path, status, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sc := &statusCapture{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sc, r)
		logFor(r.Context()).Info("req",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sc.code,
			"dur", time.Since(start).String(),
		)
	})
}

// requireAuth verifies the Bearer token against the static keys and the
// device key table, then injects AuthDevice into the context.
func (s *Server) requireAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.Header.Get(remote.DeviceHeader)
		if s.config.AuthDisabled {
			s.serveAs(w, r, handler, &AuthDevice{KeyID: "anonymous", DeviceID: deviceID})
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid authorization format")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		for _, k := range s.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(k), []byte(token)) == 1 {
				s.serveAs(w, r, handler, &AuthDevice{KeyID: "static", DeviceID: deviceID})
				return
			}
		}

		dk, err := s.store.VerifyDeviceKey(token)
		if err != nil {
			logFor(r.Context()).Error("verify device key", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to verify key")
			return
		}
		if dk == nil {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired key")
			return
		}
		s.serveAs(w, r, handler, &AuthDevice{KeyID: dk.ID, Name: dk.DeviceName, DeviceID: deviceID})
	}
}

func (s *Server) serveAs(w http.ResponseWriter, r *http.Request, handler http.HandlerFunc, dev *AuthDevice) {
	ctx := context.WithValue(r.Context(), ctxKeyAuthDevice, dev)
	l := logFor(ctx).With("kid", dev.KeyID)
	if dev.DeviceID != "" {
		l = l.With("device", dev.DeviceID)
	}
	ctx = context.WithValue(ctx, ctxKeyLogger, l)
	handler(w, r.WithContext(ctx))
}

// maxBytesMiddleware limits request body size to prevent abuse.
func maxBytesMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// chain applies middleware in order (first applied is outermost).
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
