// Package watch reports writes to the local store file made by any process.
package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// StoreWatcher watches the directory of a SQLite file and signals on every
// write to the file or its WAL/journal siblings. Signals coalesce: a reader
// that falls behind sees one pending signal, not a backlog.
type StoreWatcher struct {
	watcher *fsnotify.Watcher
	changes chan struct{}
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dir     string
	base    string
}

// New creates a watcher for the store at dbPath. Start must be called before
// it emits anything.
func New(dbPath string) (*StoreWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &StoreWatcher{
		watcher: w,
		changes: make(chan struct{}, 1),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		dir:     filepath.Dir(dbPath),
		base:    filepath.Base(dbPath),
	}, nil
}

// Start begins watching the store directory.
func (sw *StoreWatcher) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return fmt.Errorf("watcher already running")
	}
	if err := sw.watcher.Add(sw.dir); err != nil {
		return fmt.Errorf("watch %s: %w", sw.dir, err)
	}
	sw.running = true
	sw.wg.Add(1)
	go sw.loop()
	return nil
}

// Stop ends watching and closes the Changes and Errors channels.
func (sw *StoreWatcher) Stop() error {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return sw.watcher.Close()
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.done)
	err := sw.watcher.Close()
	sw.wg.Wait()
	close(sw.changes)
	close(sw.errors)
	if err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}
	return nil
}

// Changes signals after the store file was written.
func (sw *StoreWatcher) Changes() <-chan struct{} { return sw.changes }

// Errors delivers watcher errors. Errors are dropped when nobody reads.
func (sw *StoreWatcher) Errors() <-chan error { return sw.errors }

func (sw *StoreWatcher) loop() {
	defer sw.wg.Done()
	for {
		select {
		case <-sw.done:
			return
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if sw.relevant(ev) {
				select {
				case sw.changes <- struct{}{}:
				default:
				}
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case sw.errors <- err:
			default:
			}
		}
	}
}

// relevant reports whether ev is a write to the store or one of its
// sidecar files.
func (sw *StoreWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(ev.Name)
	if name == sw.base {
		return true
	}
	rest, ok := strings.CutPrefix(name, sw.base)
	return ok && (rest == "-wal" || rest == "-journal")
}
