package syncconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTestConfig points HOME at a temp dir holding ~/.config/rxsync/config.json.
func writeTestConfig(t *testing.T, cfg *Config) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	dir := filepath.Join(tmpDir, ".config", "rxsync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RXSYNC_URL", "RXSYNC_API_KEY", "RXSYNC_DRAIN_INTERVAL", "RXSYNC_PROBE_INTERVAL",
		"RXSYNC_BATCH_SIZE", "RXSYNC_SUBSCRIBE", "RXSYNC_WATCH"} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	writeTestConfig(t, &Config{})
	clearEnv(t)

	if got := GetServerURL(); got != defaultServerURL {
		t.Errorf("server url: got %q", got)
	}
	if d := GetDrainInterval(); d != 5*time.Second {
		t.Errorf("drain interval: got %v, want 5s", d)
	}
	if d := GetProbeInterval(); d != 10*time.Second {
		t.Errorf("probe interval: got %v, want 10s", d)
	}
	if n := GetBatchSize(); n != 50 {
		t.Errorf("batch size: got %d, want 50", n)
	}
	if !GetSubscribeEnabled() || !GetWatchEnabled() {
		t.Error("subscribe and watch default to on")
	}
	if IsAuthenticated() {
		t.Error("no key configured")
	}
}

func TestDrainSettingsFromConfig(t *testing.T) {
	writeTestConfig(t, &Config{Sync: SyncConfig{URL: "http://pharmacy.example:9000", Drain: DrainConfig{
		Interval:      "30s",
		ProbeInterval: "1m",
		BatchSize:     intPtr(10),
		Subscribe:     boolPtr(false),
		Watch:         boolPtr(false),
	}}})
	clearEnv(t)

	if got := GetServerURL(); got != "http://pharmacy.example:9000" {
		t.Errorf("server url: got %q", got)
	}
	if d := GetDrainInterval(); d != 30*time.Second {
		t.Errorf("drain interval: got %v", d)
	}
	if d := GetProbeInterval(); d != time.Minute {
		t.Errorf("probe interval: got %v", d)
	}
	if n := GetBatchSize(); n != 10 {
		t.Errorf("batch size: got %d", n)
	}
	if GetSubscribeEnabled() {
		t.Error("expected subscribe disabled from config")
	}
	if GetWatchEnabled() {
		t.Error("expected watch disabled from config")
	}
}

func TestEnvOverridesConfig(t *testing.T) {
	writeTestConfig(t, &Config{Sync: SyncConfig{Drain: DrainConfig{
		Interval:  "30s",
		BatchSize: intPtr(10),
		Subscribe: boolPtr(false),
	}}})
	clearEnv(t)

	t.Setenv("RXSYNC_DRAIN_INTERVAL", "2s")
	if d := GetDrainInterval(); d != 2*time.Second {
		t.Errorf("env should override config for interval, got %v", d)
	}
	t.Setenv("RXSYNC_BATCH_SIZE", "25")
	if n := GetBatchSize(); n != 25 {
		t.Errorf("env should override config for batch size, got %d", n)
	}
	t.Setenv("RXSYNC_SUBSCRIBE", "1")
	if !GetSubscribeEnabled() {
		t.Error("env should override config for subscribe")
	}
}

func TestInvalidEnvFallsThrough(t *testing.T) {
	writeTestConfig(t, &Config{})
	clearEnv(t)

	t.Setenv("RXSYNC_BATCH_SIZE", "-5")
	if n := GetBatchSize(); n != 50 {
		t.Errorf("negative batch size: got %d, want default", n)
	}
	t.Setenv("RXSYNC_DRAIN_INTERVAL", "soon")
	if d := GetDrainInterval(); d != 5*time.Second {
		t.Errorf("bad interval: got %v, want default", d)
	}
	t.Setenv("RXSYNC_WATCH", "maybe")
	if !GetWatchEnabled() {
		t.Error("unparseable bool should fall through to default")
	}
}

func TestAuthRoundTrip(t *testing.T) {
	writeTestConfig(t, &Config{})
	clearEnv(t)

	creds := &AuthCredentials{APIKey: "rx_live_abc", ServerURL: "http://remote:8080", DeviceID: GenerateDeviceID()}
	if err := SaveAuth(creds); err != nil {
		t.Fatalf("SaveAuth: %v", err)
	}
	dir, _ := ConfigDir()
	info, err := os.Stat(filepath.Join(dir, "auth.json"))
	if err != nil {
		t.Fatalf("stat auth.json: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("auth.json perms = %v", info.Mode().Perm())
	}

	if got := GetAPIKey(); got != "rx_live_abc" {
		t.Errorf("api key: got %q", got)
	}
	if got := GetServerURL(); got != "http://remote:8080" {
		t.Errorf("server url from auth: got %q", got)
	}
	id, err := GetDeviceID()
	if err != nil || id != creds.DeviceID {
		t.Errorf("device id: got %q, %v", id, err)
	}

	t.Setenv("RXSYNC_API_KEY", "from-env")
	if got := GetAPIKey(); got != "from-env" {
		t.Errorf("env api key: got %q", got)
	}

	if err := ClearAuth(); err != nil {
		t.Fatalf("ClearAuth: %v", err)
	}
	if err := ClearAuth(); err != nil {
		t.Fatalf("second ClearAuth: %v", err)
	}
	creds, err = LoadAuth()
	if err != nil || creds != nil {
		t.Errorf("LoadAuth after clear = %+v, %v", creds, err)
	}
}
