package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	ServerDBPath    string
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	// APIKeys are static bearer keys accepted in addition to device keys
	// issued with `rxsync-server keys create`. Auth is disabled only when
	// both are empty and AuthDisabled is set.
	APIKeys      []string
	AuthDisabled bool

	RateLimitWrite   int // POST/PATCH/DELETE per key per minute (default: 600)
	RateLimitRead    int // GET per key per minute (default: 1200)
	RateLimitChanges int // change feed connects per key per minute (default: 30)

	CORSAllowedOrigins []string // browser clients; empty = disabled

	RateLimitEventRetention time.Duration // default: 30 days
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		ServerDBPath:    "./data/rxsync.db",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",

		RateLimitWrite:   600,
		RateLimitRead:    1200,
		RateLimitChanges: 30,

		RateLimitEventRetention: 30 * 24 * time.Hour,
	}

	if v := os.Getenv("RXSYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("RXSYNC_SERVER_DB_PATH"); v != "" {
		cfg.ServerDBPath = v
	}
	if v := os.Getenv("RXSYNC_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("RXSYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("RXSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RXSYNC_API_KEYS"); v != "" {
		cfg.APIKeys = splitList(v)
	}
	if v := os.Getenv("RXSYNC_AUTH_DISABLED"); v == "true" || v == "1" {
		cfg.AuthDisabled = true
	}

	if n := envInt("RXSYNC_RATE_LIMIT_WRITE"); n > 0 {
		cfg.RateLimitWrite = n
	}
	if n := envInt("RXSYNC_RATE_LIMIT_READ"); n > 0 {
		cfg.RateLimitRead = n
	}
	if n := envInt("RXSYNC_RATE_LIMIT_CHANGES"); n > 0 {
		cfg.RateLimitChanges = n
	}

	if v := os.Getenv("RXSYNC_RATE_LIMIT_EVENT_RETENTION"); v != "" {
		if d := parseDaysDuration(v); d > 0 {
			cfg.RateLimitEventRetention = d
		}
	}
	if v := os.Getenv("RXSYNC_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	return cfg
}

func envInt(name string) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDaysDuration parses a string like "90d", "30d" into a time.Duration.
// Falls back to time.ParseDuration for standard Go durations.
func parseDaysDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		numStr := strings.TrimSuffix(s, "d")
		if n, err := strconv.Atoi(numStr); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 0
}
