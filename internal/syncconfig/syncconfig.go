// Package syncconfig holds the per-user settings of the sync client: where
// the remote store lives, the credentials for it and the drain schedule.
package syncconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DrainConfig controls when and how much the drainer pushes.
type DrainConfig struct {
	Interval      string `json:"interval,omitempty"`       // duration string, default "5s"
	ProbeInterval string `json:"probe_interval,omitempty"` // duration string, default "10s"
	BatchSize     *int   `json:"batch_size,omitempty"`     // nil = default 50
	Subscribe     *bool  `json:"subscribe,omitempty"`      // nil = default true
	Watch         *bool  `json:"watch,omitempty"`          // nil = default true
}

// SyncConfig holds sync-related settings.
type SyncConfig struct {
	URL   string      `json:"url"`
	Drain DrainConfig `json:"drain"`
}

// Config is the global rxsync config stored at ~/.config/rxsync/config.json.
type Config struct {
	Sync SyncConfig `json:"sync"`
}

// AuthCredentials stores authentication state at ~/.config/rxsync/auth.json.
type AuthCredentials struct {
	APIKey    string `json:"api_key"`
	ServerURL string `json:"server_url"`
	DeviceID  string `json:"device_id"`
	SavedAt   string `json:"saved_at,omitempty"`
}

const (
	defaultServerURL     = "http://localhost:8080"
	defaultDrainInterval = 5 * time.Second
	defaultProbeInterval = 10 * time.Second
	defaultBatchSize     = 50
)

// ConfigDir returns ~/.config/rxsync, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "rxsync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadConfig reads the global config. A missing file is an empty config.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the global config.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// LoadAuth reads auth credentials; nil when nobody has logged in.
func LoadAuth() (*AuthCredentials, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "auth.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse auth.json: %w", err)
	}
	return &creds, nil
}

// SaveAuth writes auth credentials (0600 perms).
func SaveAuth(creds *AuthCredentials) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "auth.json"), data, 0600)
}

// ClearAuth removes the auth.json file.
func ClearAuth() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "auth.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// GetServerURL returns the remote store URL.
// Priority: RXSYNC_URL env > auth.json > config.json > default.
func GetServerURL() string {
	if v := os.Getenv("RXSYNC_URL"); v != "" {
		return v
	}
	if creds, err := LoadAuth(); err == nil && creds != nil && creds.ServerURL != "" {
		return creds.ServerURL
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.URL != "" {
		return cfg.Sync.URL
	}
	return defaultServerURL
}

// GetAPIKey returns the API key.
// Priority: RXSYNC_API_KEY env > auth.json.
func GetAPIKey() string {
	if v := os.Getenv("RXSYNC_API_KEY"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.APIKey
	}
	return ""
}

// IsAuthenticated returns true if an API key is available.
func IsAuthenticated() bool {
	return GetAPIKey() != ""
}

// GetDeviceID returns the device ID from auth.json, generating one if needed.
// The remote change feed uses it to leave out this device's own writes.
func GetDeviceID() (string, error) {
	creds, err := LoadAuth()
	if err != nil {
		return "", err
	}
	if creds != nil && creds.DeviceID != "" {
		return creds.DeviceID, nil
	}
	return GenerateDeviceID(), nil
}

// GenerateDeviceID creates a new random device ID.
func GenerateDeviceID() string {
	return uuid.NewString()
}

// parseBoolEnv returns nil if env not set, pointer to bool if set.
func parseBoolEnv(envKey string) *bool {
	v := os.Getenv(envKey)
	if v == "" {
		return nil
	}
	v = strings.ToLower(v)
	if v == "1" || v == "true" {
		b := true
		return &b
	}
	if v == "0" || v == "false" {
		b := false
		return &b
	}
	return nil
}

func durationSetting(envKey, configured string, def time.Duration) time.Duration {
	if v := os.Getenv(envKey); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	if configured != "" {
		if d, err := time.ParseDuration(configured); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func drainConfig() DrainConfig {
	cfg, err := LoadConfig()
	if err != nil {
		return DrainConfig{}
	}
	return cfg.Sync.Drain
}

// GetDrainInterval returns the fixed drain interval.
// Priority: RXSYNC_DRAIN_INTERVAL env > config.json sync.drain.interval > 5s
func GetDrainInterval() time.Duration {
	return durationSetting("RXSYNC_DRAIN_INTERVAL", drainConfig().Interval, defaultDrainInterval)
}

// GetProbeInterval returns how often connectivity is checked.
// Priority: RXSYNC_PROBE_INTERVAL env > config.json sync.drain.probe_interval > 10s
func GetProbeInterval() time.Duration {
	return durationSetting("RXSYNC_PROBE_INTERVAL", drainConfig().ProbeInterval, defaultProbeInterval)
}

// GetBatchSize returns the number of outbox entries read per batch.
// Priority: RXSYNC_BATCH_SIZE env > config.json sync.drain.batch_size > 50
func GetBatchSize() int {
	if v := os.Getenv("RXSYNC_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if d := drainConfig(); d.BatchSize != nil && *d.BatchSize > 0 {
		return *d.BatchSize
	}
	return defaultBatchSize
}

// GetSubscribeEnabled returns whether remote changes are followed.
// Priority: RXSYNC_SUBSCRIBE env > config.json sync.drain.subscribe > true
func GetSubscribeEnabled() bool {
	if v := parseBoolEnv("RXSYNC_SUBSCRIBE"); v != nil {
		return *v
	}
	if d := drainConfig(); d.Subscribe != nil {
		return *d.Subscribe
	}
	return true
}

// GetWatchEnabled returns whether writes by other processes trigger a drain.
// Priority: RXSYNC_WATCH env > config.json sync.drain.watch > true
func GetWatchEnabled() bool {
	if v := parseBoolEnv("RXSYNC_WATCH"); v != nil {
		return *v
	}
	if d := drainConfig(); d.Watch != nil {
		return *d.Watch
	}
	return true
}
