package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestRelevant(t *testing.T) {
	sw := &StoreWatcher{base: "pharmacy.db"}
	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{"/x/pharmacy.db", fsnotify.Write, true},
		{"/x/pharmacy.db-wal", fsnotify.Write, true},
		{"/x/pharmacy.db-journal", fsnotify.Create, true},
		{"/x/pharmacy.db-shm", fsnotify.Write, false},
		{"/x/pharmacy.db", fsnotify.Chmod, false},
		{"/x/config.json", fsnotify.Write, false},
	}
	for _, tt := range tests {
		if got := sw.relevant(fsnotify.Event{Name: tt.name, Op: tt.op}); got != tt.want {
			t.Errorf("relevant(%s %s) = %v, want %v", tt.name, tt.op, got, tt.want)
		}
	}
}

func TestStoreWatcherSignalsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pharmacy.db")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	sw, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sw.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-sw.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signalled")
	}
}

func TestStoreWatcherStopClosesChannels(t *testing.T) {
	sw, err := New(filepath.Join(t.TempDir(), "pharmacy.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sw.Start(); err == nil {
		t.Fatal("second Start should fail")
	}
	if err := sw.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := <-sw.Changes(); ok {
		t.Fatal("changes channel still open")
	}
}
