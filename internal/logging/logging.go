// Package logging sets up slog for long-running client processes: a text
// handler over a size-rotated log file under .rxsync/logs.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/marcus/rxsync/internal/config"
)

// Dir is the log directory relative to the store's base dir.
const Dir = ".rxsync/logs"

// FileName is the rotating log written by the daemon and the monitor.
const FileName = "sync.log"

// Options selects where log lines go.
type Options struct {
	Level string // debug, info, warn, error; default info
	// Stderr mirrors every line to stderr as well as the file.
	Stderr bool
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Path returns the log file path for the store at baseDir.
func Path(baseDir string) string {
	return filepath.Join(baseDir, Dir, FileName)
}

// Setup installs a default slog logger writing to the rotating log of the
// store at baseDir. The returned closer flushes and closes the file.
func Setup(baseDir string, cfg config.LogConfig, opts Options) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, Dir), 0755); err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   Path(baseDir),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	var w io.Writer = rotator
	if opts.Stderr {
		w = io.MultiWriter(rotator, os.Stderr)
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	slog.SetDefault(slog.New(handler).With("pid", os.Getpid()))
	return rotator, nil
}
