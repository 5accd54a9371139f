package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	lockFileName   = "store.lock"
	defaultTimeout = 2 * time.Second
	initialBackoff = 5 * time.Millisecond
	maxBackoff     = 50 * time.Millisecond
)

// writeLocker serializes write transactions across goroutines and processes
// (the UI process and the sync daemon share one store) with an OS file lock.
// The OS drops the lock if the holder crashes.
type writeLocker struct {
	lockPath string
	lockFile *os.File
}

func newWriteLocker(baseDir string) *writeLocker {
	return &writeLocker{
		lockPath: filepath.Join(baseDir, storeDir, lockFileName),
	}
}

// acquire polls for the exclusive lock with capped exponential backoff.
func (l *writeLocker) acquire(timeout time.Duration) error {
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.lockFile = f

	deadline := time.Now().Add(timeout)
	backoff := initialBackoff

	for {
		if err := l.tryLock(); err == nil {
			l.writeHolder()
			return nil
		}

		if time.Now().After(deadline) {
			holder := l.readHolder()
			l.lockFile.Close()
			l.lockFile = nil
			return fmt.Errorf("store write lock timeout after %v (holder: %s)", timeout, holder)
		}

		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *writeLocker) release() error {
	if l.lockFile == nil {
		return nil
	}
	l.lockFile.Truncate(0)
	l.unlock()
	l.lockFile.Close()
	l.lockFile = nil
	return nil
}

// writeHolder records pid and time in the lock file for timeout diagnostics.
func (l *writeLocker) writeHolder() {
	if l.lockFile == nil {
		return
	}
	l.lockFile.Truncate(0)
	l.lockFile.Seek(0, 0)
	fmt.Fprintf(l.lockFile, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
}

func (l *writeLocker) readHolder() string {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return "unknown"
	}

	var pid, since string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if v, ok := strings.CutPrefix(line, "pid:"); ok {
			pid = v
		} else if v, ok := strings.CutPrefix(line, "time:"); ok {
			since = v
		}
	}
	if pid == "" {
		return "unknown"
	}

	if n, err := strconv.Atoi(pid); err == nil && !isProcessAlive(n) {
		return fmt.Sprintf("pid:%s since %s (stale)", pid, since)
	}
	return fmt.Sprintf("pid:%s since %s", pid, since)
}
