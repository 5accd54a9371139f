package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
)

func setupStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createDrug(t *testing.T, store *db.DB, name string) {
	t.Helper()
	err := store.WithTx(context.Background(), func(tx *db.Tx) error {
		_, err := tx.CreateRecord(models.EntityDrugs, map[string]any{"name": name, "salePrice": 15}, db.OriginLocal)
		return err
	})
	if err != nil {
		t.Fatalf("create drug: %v", err)
	}
}

func TestFetchData(t *testing.T) {
	store := setupStore(t)
	createDrug(t, store, "Paracetamol")
	createDrug(t, store, "Ibuprofen")

	err := store.WithTx(context.Background(), func(tx *db.Tx) error {
		if err := tx.RecordFailure(1, "remote rejected: 422"); err != nil {
			return err
		}
		return tx.RecordSyncHistory(db.SyncHistoryEntry{Direction: db.DirectionPull, Action: "insert", Entity: "roles", LocalKey: 1, RemoteKey: 3})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	data := FetchData(store, 10)
	if data.Err != nil {
		t.Fatalf("FetchData: %v", data.Err)
	}
	if data.Pending != 2 || len(data.Queue) != 2 {
		t.Fatalf("pending = %d, queue = %d, want 2 and 2", data.Pending, len(data.Queue))
	}
	if data.Queue[0].Attempts != 1 || data.Queue[0].LastError != "remote rejected: 422" {
		t.Errorf("failure not joined onto head entry: %+v", data.Queue[0])
	}
	if data.Queue[1].Attempts != 0 {
		t.Errorf("second entry should have no failures: %+v", data.Queue[1])
	}
	if len(data.History) != 1 || data.History[0].Direction != db.DirectionPull {
		t.Errorf("history = %+v", data.History)
	}
}

func TestStatusMsgUpdatesStatus(t *testing.T) {
	statuses := make(chan models.SyncStatus, 1)
	m := NewModel(setupStore(t), statuses, nil, time.Second)

	updated, cmd := m.Update(StatusMsg(models.SyncStatus{State: models.SyncSyncing, Processed: 3, Total: 10}))
	got := updated.(Model)
	if got.Status.State != models.SyncSyncing {
		t.Errorf("state = %s, want syncing", got.Status.State)
	}
	if cmd == nil {
		t.Error("expected a refresh and a new status wait")
	}
}

func TestSyncKeyTriggersDrain(t *testing.T) {
	triggered := 0
	m := NewModel(setupStore(t), nil, func() { triggered++ }, time.Second)

	m.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if triggered != 1 {
		t.Errorf("trigger calls = %d, want 1", triggered)
	}
}

func TestPanelSwitching(t *testing.T) {
	m := NewModel(setupStore(t), nil, nil, time.Second)

	updated, _ := m.handleKey(tea.KeyMsg{Type: tea.KeyTab})
	if got := updated.(Model).ActivePanel; got != PanelHistory {
		t.Errorf("after tab: panel = %d, want history", got)
	}
	updated, _ = updated.(Model).handleKey(tea.KeyMsg{Type: tea.KeyTab})
	if got := updated.(Model).ActivePanel; got != PanelQueue {
		t.Errorf("after second tab: panel = %d, want queue", got)
	}
}

func TestScrollClampsToRows(t *testing.T) {
	m := NewModel(setupStore(t), nil, nil, time.Second)
	m.Queue = []QueueRow{{}, {}}

	var model tea.Model = m
	for range 5 {
		model, _ = model.(Model).handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	}
	if got := model.(Model).ScrollOffset[PanelQueue]; got != 1 {
		t.Errorf("scroll offset = %d, want 1", got)
	}
}

func TestViewShowsQueueAndQuarantine(t *testing.T) {
	m := NewModel(setupStore(t), nil, nil, time.Second)
	m.Width, m.Height = 100, 30
	m.Status = models.SyncStatus{State: models.SyncPending, Pending: 1}
	m.Pending = 1
	m.Quarantined = 2
	m.Queue = []QueueRow{{Entry: models.OutboxEntry{Seq: 7, Entity: models.EntityDrugs, Action: models.ActionCreate, LocalKey: 4}}}

	view := m.View()
	for _, want := range []string{"OUTBOX (1)", "drugs #4", "[2 QUARANTINED]", "1 change waiting to sync"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestCompactView(t *testing.T) {
	m := NewModel(setupStore(t), nil, nil, time.Second)
	m.Width, m.Height = 30, 10

	if view := m.View(); !strings.Contains(view, "resize for full view") {
		t.Errorf("expected compact view, got %q", view)
	}
}
