// Package syncharness runs several simulated pharmacy devices against an
// in-process remote store, for end-to-end sync tests.
package syncharness

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/marcus/rxsync/internal/api"
	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/remote"
	"github.com/marcus/rxsync/internal/serverdb"
	rxsync "github.com/marcus/rxsync/internal/sync"
	"github.com/marcus/rxsync/internal/translate"
)

const apiKey = "rx_harness_key"

// SimulatedDevice is one pharmacy terminal with its own local store.
type SimulatedDevice struct {
	ID      string
	Store   *db.DB
	Client  *remote.Client
	Drainer *rxsync.Drainer

	mu         gosync.Mutex
	applyErrs  []error
	stopFollow context.CancelFunc
}

// Harness owns the remote store and the devices talking to it.
type Harness struct {
	t       *testing.T
	Server  *api.Server
	Remote  *serverdb.ServerDB
	httpSrv *httptest.Server
	Devices map[string]*SimulatedDevice
}

// NewHarness starts a remote store and numDevices devices named
// device-A, device-B, and so on.
func NewHarness(t *testing.T, numDevices int) *Harness {
	t.Helper()

	store, err := serverdb.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	srv, err := api.NewServer(api.Config{
		APIKeys:          []string{apiKey},
		RateLimitWrite:   100000,
		RateLimitRead:    100000,
		RateLimitChanges: 100000,
	}, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())

	h := &Harness{
		t:       t,
		Server:  srv,
		Remote:  store,
		httpSrv: httpSrv,
		Devices: make(map[string]*SimulatedDevice),
	}

	for i := range numDevices {
		id := fmt.Sprintf("device-%c", 'A'+i)
		local, err := db.Initialize(t.TempDir())
		if err != nil {
			t.Fatalf("init store %s: %v", id, err)
		}
		client := remote.New(httpSrv.URL, apiKey, id)
		client.HTTP = httpSrv.Client()
		h.Devices[id] = &SimulatedDevice{
			ID:      id,
			Store:   local,
			Client:  client,
			Drainer: rxsync.NewDrainer(local, client, nil, rxsync.NewNotifier(), 0),
		}
	}

	t.Cleanup(func() {
		for _, d := range h.Devices {
			if d.stopFollow != nil {
				d.stopFollow()
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		httpSrv.Close()
		for _, d := range h.Devices {
			d.Store.Close()
		}
		store.Close()
	})
	return h
}

func (h *Harness) device(id string) *SimulatedDevice {
	h.t.Helper()
	d, ok := h.Devices[id]
	if !ok {
		h.t.Fatalf("unknown device %q", id)
	}
	return d
}

// Create writes a new local record on a device and returns its local key.
func (h *Harness) Create(deviceID, entity string, data map[string]any) int64 {
	h.t.Helper()
	var key int64
	err := h.device(deviceID).Store.WithTx(context.Background(), func(tx *db.Tx) error {
		var err error
		key, err = tx.CreateRecord(entity, data, db.OriginLocal)
		return err
	})
	if err != nil {
		h.t.Fatalf("%s: create %s: %v", deviceID, entity, err)
	}
	return key
}

// Update changes fields of a local record on a device.
func (h *Harness) Update(deviceID, entity string, key int64, partial map[string]any) {
	h.t.Helper()
	err := h.device(deviceID).Store.WithTx(context.Background(), func(tx *db.Tx) error {
		return tx.UpdateRecord(entity, key, partial, db.OriginLocal)
	})
	if err != nil {
		h.t.Fatalf("%s: update %s #%d: %v", deviceID, entity, key, err)
	}
}

// Delete removes a local record on a device.
func (h *Harness) Delete(deviceID, entity string, key int64) {
	h.t.Helper()
	err := h.device(deviceID).Store.WithTx(context.Background(), func(tx *db.Tx) error {
		return tx.DeleteRecord(entity, key, db.OriginLocal)
	})
	if err != nil {
		h.t.Fatalf("%s: delete %s #%d: %v", deviceID, entity, key, err)
	}
}

// Push drains a device's outbox to the remote store.
func (h *Harness) Push(deviceID string) rxsync.DrainResult {
	h.t.Helper()
	return h.device(deviceID).Drainer.Drain(context.Background())
}

// Follow subscribes a device to the remote change feed for every synced
// table and blocks until the server has registered the subscription.
func (h *Harness) Follow(deviceID string) {
	h.t.Helper()
	d := h.device(deviceID)
	before := h.Server.Subscribers()

	ctx, cancel := context.WithCancel(context.Background())
	d.stopFollow = cancel
	go d.Client.Subscribe(ctx, translate.Tables(), func(ch remote.Change) {
		if err := rxsync.ApplyRemote(ctx, d.Store, ch); err != nil {
			d.mu.Lock()
			d.applyErrs = append(d.applyErrs, err)
			d.mu.Unlock()
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for h.Server.Subscribers() <= before {
		if time.Now().After(deadline) {
			h.t.Fatalf("%s: change feed subscription not registered", deviceID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ApplyErrors returns the errors a following device hit applying changes.
func (h *Harness) ApplyErrors(deviceID string) []error {
	d := h.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.applyErrs...)
}

// RemoteKey returns the remote key of a device's local record, or 0.
func (h *Harness) RemoteKey(deviceID, entity string, key int64) int64 {
	h.t.Helper()
	var rk int64
	err := h.device(deviceID).Store.View(context.Background(), func(tx *db.Tx) error {
		rec, err := tx.GetRecord(entity, key)
		if err != nil {
			return err
		}
		if rec.RemoteKey != nil {
			rk = *rec.RemoteKey
		}
		return nil
	})
	if err != nil {
		h.t.Fatalf("%s: get %s #%d: %v", deviceID, entity, key, err)
	}
	return rk
}

// QueryByRemote returns a device's copy of a remote row, or nil.
func (h *Harness) QueryByRemote(deviceID, entity string, remoteKey int64) *db.Record {
	h.t.Helper()
	var rec *db.Record
	err := h.device(deviceID).Store.View(context.Background(), func(tx *db.Tx) error {
		var err error
		rec, err = tx.QueryByRemoteKey(entity, remoteKey)
		return err
	})
	if err != nil {
		return nil
	}
	return rec
}

// WaitFor polls until cond holds for a device's copy of a remote row.
func (h *Harness) WaitFor(deviceID, entity string, remoteKey int64, cond func(*db.Record) bool) *db.Record {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := h.QueryByRemote(deviceID, entity, remoteKey)
		if cond(rec) {
			return rec
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("%s: %s remote #%d never reached the expected state (last: %+v, apply errors: %v)",
				deviceID, entity, remoteKey, rec, h.ApplyErrors(deviceID))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Pending returns the number of queued outbox entries on a device.
func (h *Harness) Pending(deviceID string) int {
	h.t.Helper()
	var n int
	err := h.device(deviceID).Store.View(context.Background(), func(tx *db.Tx) error {
		var err error
		n, err = tx.CountPending()
		return err
	})
	if err != nil {
		h.t.Fatalf("%s: count outbox: %v", deviceID, err)
	}
	return n
}
