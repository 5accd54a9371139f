package cmd

import (
	"context"
	"testing"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
)

func initStore(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func createRecord(t *testing.T, database *db.DB, entity string, data map[string]any) int64 {
	t.Helper()
	var key int64
	err := database.WithTx(context.Background(), func(tx *db.Tx) error {
		var err error
		key, err = tx.CreateRecord(entity, data, db.OriginLocal)
		return err
	})
	if err != nil {
		t.Fatalf("create %s: %v", entity, err)
	}
	return key
}

func snapshot(t *testing.T, database *db.DB) storeSnapshot {
	t.Helper()
	var snap storeSnapshot
	err := database.View(context.Background(), func(tx *db.Tx) error {
		var err error
		snap, err = readSnapshot(tx)
		return err
	})
	if err != nil {
		t.Fatalf("readSnapshot: %v", err)
	}
	return snap
}

func TestDeriveStatus_EmptyStore(t *testing.T) {
	database := initStore(t)
	snap := snapshot(t, database)

	if snap.Pending != 0 || snap.Head != nil {
		t.Fatalf("empty store snapshot = %+v", snap)
	}
	if got := deriveStatus(true, snap); got.State != models.SyncSynced {
		t.Errorf("online empty store = %s, want synced", got.State)
	}
	if got := deriveStatus(false, snap); got.State != models.SyncOffline {
		t.Errorf("offline empty store = %s, want offline", got.State)
	}
}

func TestDeriveStatus_PendingAndStuck(t *testing.T) {
	database := initStore(t)
	createRecord(t, database, models.EntityDrugs, map[string]any{"name": "Amoxicillin", "totalStock": 5})
	createRecord(t, database, models.EntitySuppliers, map[string]any{"name": "MedSupply"})

	snap := snapshot(t, database)
	if snap.Pending != 2 {
		t.Fatalf("Pending = %d, want 2", snap.Pending)
	}
	if snap.Head == nil || snap.Head.Entity != models.EntityDrugs {
		t.Fatalf("Head = %+v, want the drug create", snap.Head)
	}

	got := deriveStatus(true, snap)
	if got.State != models.SyncPending || got.Pending != 2 {
		t.Errorf("status = %+v, want pending with 2", got)
	}

	headSeq := snap.Head.Seq
	err := database.WithTx(context.Background(), func(tx *db.Tx) error {
		return tx.RecordFailure(headSeq, "remote rejected (409 conflict)")
	})
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	got = deriveStatus(true, snapshot(t, database))
	if got.State != models.SyncError {
		t.Fatalf("status = %s, want error", got.State)
	}
	if got.Remaining != 2 || got.LastError != "remote rejected (409 conflict)" {
		t.Errorf("status = %+v", got)
	}

	if got := deriveStatus(false, snapshot(t, database)); got.State != models.SyncOffline || got.Pending != 2 {
		t.Errorf("offline status = %+v, want offline with 2", got)
	}
}

func TestReadSnapshot_LastPushAndPull(t *testing.T) {
	database := initStore(t)
	err := database.WithTx(context.Background(), func(tx *db.Tx) error {
		if err := tx.RecordSyncHistory(db.SyncHistoryEntry{Direction: db.DirectionPush, Action: "create", Entity: models.EntityDrugs, LocalKey: 1, Seq: 1}); err != nil {
			return err
		}
		return tx.RecordSyncHistory(db.SyncHistoryEntry{Direction: db.DirectionPull, Action: "update", Entity: models.EntityDrugs, LocalKey: 1, RemoteKey: 9})
	})
	if err != nil {
		t.Fatalf("RecordSyncHistory: %v", err)
	}

	snap := snapshot(t, database)
	if snap.LastPush.IsZero() {
		t.Error("LastPush not set")
	}
	if snap.LastPull.IsZero() {
		t.Error("LastPull not set")
	}
}
