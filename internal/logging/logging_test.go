package logging

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/marcus/rxsync/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupWritesToRotatingFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	closer, err := Setup(dir, (&config.Config{}).LogSettings(), Options{Level: "debug"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	slog.Debug("drain: entry synced", "seq", 7)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(Path(dir))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "drain: entry synced") || !strings.Contains(line, "seq=7") {
		t.Errorf("log line = %q", line)
	}
}
