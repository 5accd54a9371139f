// Package config reads and writes the per-store settings file
// .rxsync/config.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/marcus/rxsync/internal/translate"
)

const configFile = ".rxsync/config.json"
const lockFile = ".rxsync/config.json.lock"

// Log rotation and alert defaults
const (
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28
	DefaultLowStock      = 10
	DefaultExpiryDays    = 90
)

// ErrUnknownKey is returned by Get and Set for keys that do not exist.
var ErrUnknownKey = errors.New("unknown config key")

// LogConfig controls rotation of the daemon log file.
type LogConfig struct {
	MaxSizeMB  int `json:"max_size_mb,omitempty"`
	MaxBackups int `json:"max_backups,omitempty"`
	MaxAgeDays int `json:"max_age_days,omitempty"`
}

// AlertConfig holds the business alert thresholds shown by status output.
type AlertConfig struct {
	LowStock   int `json:"low_stock,omitempty"`
	ExpiryDays int `json:"expiry_days,omitempty"`
}

// Config is the per-store configuration.
type Config struct {
	// Tables limits the remote change feed; empty means every synced table.
	Tables []string    `json:"tables,omitempty"`
	Log    LogConfig   `json:"log"`
	Alerts AlertConfig `json:"alerts"`
}

// Load reads the config from disk
func Load(baseDir string) (*Config, error) {
	configPath := filepath.Join(baseDir, configFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}

	return &cfg, nil
}

// Save writes the config to disk using atomic write (temp file + rename)
func Save(baseDir string, cfg *Config) error {
	configPath := filepath.Join(baseDir, configFile)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, configPath)
}

// withConfigLock serializes access to config.json using flock
func withConfigLock(baseDir string, fn func() error) error {
	lockPath := filepath.Join(baseDir, lockFile)

	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return err
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	return fn()
}

// WatchedTables returns the remote tables the change feed follows.
func (c *Config) WatchedTables() []string {
	if len(c.Tables) == 0 {
		return translate.Tables()
	}
	return c.Tables
}

// LogSettings returns the rotation settings with defaults filled in.
func (c *Config) LogSettings() LogConfig {
	out := c.Log
	if out.MaxSizeMB <= 0 {
		out.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if out.MaxBackups <= 0 {
		out.MaxBackups = DefaultLogMaxBackups
	}
	if out.MaxAgeDays <= 0 {
		out.MaxAgeDays = DefaultLogMaxAgeDays
	}
	return out
}

// AlertSettings returns the alert thresholds with defaults filled in.
func (c *Config) AlertSettings() AlertConfig {
	out := c.Alerts
	if out.LowStock <= 0 {
		out.LowStock = DefaultLowStock
	}
	if out.ExpiryDays <= 0 {
		out.ExpiryDays = DefaultExpiryDays
	}
	return out
}

// Keys lists the settable keys in display order.
func Keys() []string {
	return []string{"tables", "log.max_size_mb", "log.max_backups", "log.max_age_days", "alerts.low_stock", "alerts.expiry_days"}
}

// Get returns the effective value of key as text.
func Get(baseDir, key string) (string, error) {
	cfg, err := Load(baseDir)
	if err != nil {
		return "", err
	}
	logs, alerts := cfg.LogSettings(), cfg.AlertSettings()
	switch key {
	case "tables":
		return strings.Join(cfg.WatchedTables(), ","), nil
	case "log.max_size_mb":
		return strconv.Itoa(logs.MaxSizeMB), nil
	case "log.max_backups":
		return strconv.Itoa(logs.MaxBackups), nil
	case "log.max_age_days":
		return strconv.Itoa(logs.MaxAgeDays), nil
	case "alerts.low_stock":
		return strconv.Itoa(alerts.LowStock), nil
	case "alerts.expiry_days":
		return strconv.Itoa(alerts.ExpiryDays), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Set parses value for key and saves it. An empty value restores the default.
func Set(baseDir, key, value string) error {
	return withConfigLock(baseDir, func() error {
		cfg, err := Load(baseDir)
		if err != nil {
			return err
		}
		if key == "tables" {
			tables, err := parseTables(value)
			if err != nil {
				return err
			}
			cfg.Tables = tables
			return Save(baseDir, cfg)
		}

		var target *int
		switch key {
		case "log.max_size_mb":
			target = &cfg.Log.MaxSizeMB
		case "log.max_backups":
			target = &cfg.Log.MaxBackups
		case "log.max_age_days":
			target = &cfg.Log.MaxAgeDays
		case "alerts.low_stock":
			target = &cfg.Alerts.LowStock
		case "alerts.expiry_days":
			target = &cfg.Alerts.ExpiryDays
		default:
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		n := 0
		if value != "" {
			n, err = strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("%s: %q is not a non-negative integer", key, value)
			}
		}
		*target = n
		return Save(baseDir, cfg)
	})
}

func parseTables(value string) ([]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	known := translate.Tables()
	var out []string
	for _, t := range strings.Split(value, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !slices.Contains(known, t) {
			return nil, fmt.Errorf("unknown table %q (known: %s)", t, strings.Join(known, ", "))
		}
		out = append(out, t)
	}
	if missing := translate.MissingReferences(out); len(missing) > 0 {
		return nil, fmt.Errorf("tables %s are referenced by the watched tables and must be watched too", strings.Join(missing, ", "))
	}
	return out, nil
}
