package serverdb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/rxsync/internal/remote"
)

func newTestDB(t *testing.T) *ServerDB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	db, err := New(conn)
	if err != nil {
		conn.Close()
		t.Fatalf("init server db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertDrug(t *testing.T, db *ServerDB, clientID, name string) int64 {
	t.Helper()
	res, err := db.Insert(context.Background(), "drugs", remote.Row{"client_id": clientID, "name": name, "sale_price": 15.0}, nil)
	if err != nil {
		t.Fatalf("insert drug: %v", err)
	}
	return res.Key
}

func TestInsert_IdempotentByClientID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.Insert(ctx, "drugs", remote.Row{"client_id": "c-1", "name": "Amoxicillin"}, nil)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !first.Created {
		t.Error("first insert should create")
	}

	second, err := db.Insert(ctx, "drugs", remote.Row{"client_id": "c-1", "name": "Amoxicillin"}, nil)
	if err != nil {
		t.Fatalf("replayed insert: %v", err)
	}
	if second.Created || second.Key != first.Key {
		t.Errorf("replay = %+v, want existing key %d", second, first.Key)
	}

	var n int
	db.conn.QueryRow(`SELECT COUNT(*) FROM drugs`).Scan(&n)
	if n != 1 {
		t.Errorf("drugs = %d, want 1", n)
	}
}

func TestInsert_RequiresClientID(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Insert(context.Background(), "drugs", remote.Row{"name": "x"}, nil)
	if !errors.Is(err, ErrMissingClient) {
		t.Errorf("err = %v, want ErrMissingClient", err)
	}
}

func TestInsert_ForeignKeyViolation(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Insert(context.Background(), "drug_batches", remote.Row{
		"client_id": "b-1", "drug_id": 999, "lot_number": "L1", "expiry_date": "2027-01-01",
	}, nil)
	if !errors.Is(err, ErrConstraint) {
		t.Errorf("err = %v, want ErrConstraint", err)
	}
}

func TestInsert_UnknownColumnAndTable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Insert(ctx, "drugs", remote.Row{"client_id": "c", "name": "x", "lowStock": true}, nil)
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("err = %v, want ErrUnknownColumn", err)
	}
	_, err = db.Insert(ctx, "patients", remote.Row{"client_id": "c"}, nil)
	if !errors.Is(err, ErrUnknownTable) {
		t.Errorf("err = %v, want ErrUnknownTable", err)
	}
	_, err = db.Insert(ctx, "drugs; DROP TABLE drugs", remote.Row{"client_id": "c"}, nil)
	if !errors.Is(err, ErrUnknownTable) {
		t.Errorf("err = %v, want ErrUnknownTable", err)
	}
}

func TestInsert_CompositeIsAtomic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	drug := insertDrug(t, db, "d-1", "Paracetamol")

	items := &remote.Children{
		Table:      "sale_invoice_items",
		ForeignKey: "invoice_id",
		Rows: []remote.Row{
			{"drug_id": drug, "name": "Paracetamol", "quantity": 2, "unit_price": 5.0, "total_price": 10.0, "position": 0},
			{"drug_id": 424242, "name": "ghost", "quantity": 1, "position": 1},
		},
	}
	_, err := db.Insert(ctx, "sale_invoices", remote.Row{"client_id": "s-1", "date": "2026-10-01", "total_amount": 10.0}, items)
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("err = %v, want ErrConstraint", err)
	}

	var n int
	db.conn.QueryRow(`SELECT COUNT(*) FROM sale_invoices`).Scan(&n)
	if n != 0 {
		t.Errorf("header survived a failed item insert")
	}
}

func TestGet_CompositeOrderedItems(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	drug := insertDrug(t, db, "d-1", "Paracetamol")

	res, err := db.Insert(ctx, "sale_invoices", remote.Row{"client_id": "s-1", "date": "2026-10-01", "total_amount": 15.0},
		&remote.Children{Table: "sale_invoice_items", ForeignKey: "invoice_id", Rows: []remote.Row{
			{"drug_id": drug, "name": "b", "quantity": 1, "position": 1},
			{"drug_id": drug, "name": "a", "quantity": 2, "position": 0, "deductions": `[{"batch_id":1,"quantity":2}]`},
		}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	row, children, err := db.Get(ctx, "sale_invoices", res.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row["client_id"] != "s-1" {
		t.Errorf("client_id = %v", row["client_id"])
	}
	if children == nil || len(children.Rows) != 2 {
		t.Fatalf("children = %+v", children)
	}
	if children.Rows[0]["name"] != "a" || children.Rows[1]["name"] != "b" {
		t.Errorf("items out of order: %v, %v", children.Rows[0]["name"], children.Rows[1]["name"])
	}
	if !strings.Contains(children.Rows[0]["deductions"].(string), "batch_id") {
		t.Errorf("deductions = %v", children.Rows[0]["deductions"])
	}
}

func TestUpdate_PartialAndReplaceItems(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	drug := insertDrug(t, db, "d-1", "Paracetamol")

	res, err := db.Insert(ctx, "sale_invoices", remote.Row{"client_id": "s-1", "date": "2026-10-01", "total_amount": 5.0},
		&remote.Children{Table: "sale_invoice_items", ForeignKey: "invoice_id", Rows: []remote.Row{
			{"drug_id": drug, "name": "a", "quantity": 1},
		}})
	if err != nil {
		t.Fatal(err)
	}

	err = db.Update(ctx, "sale_invoices", res.Key, remote.Row{"total_amount": 20.0},
		&remote.Children{Table: "sale_invoice_items", ForeignKey: "invoice_id", Rows: []remote.Row{
			{"drug_id": drug, "name": "x", "quantity": 2},
			{"drug_id": drug, "name": "y", "quantity": 2},
		}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	row, children, err := db.Get(ctx, "sale_invoices", res.Key)
	if err != nil {
		t.Fatal(err)
	}
	if row["total_amount"] != 20.0 {
		t.Errorf("total_amount = %v", row["total_amount"])
	}
	if row["date"] != "2026-10-01" {
		t.Errorf("untouched column changed: %v", row["date"])
	}
	if len(children.Rows) != 2 {
		t.Errorf("items = %d, want 2", len(children.Rows))
	}
}

func TestUpdate_MissingRow(t *testing.T) {
	db := newTestDB(t)
	err := db.Update(context.Background(), "drugs", 77, remote.Row{"name": "x"}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete_CascadesItemsAndRejectsReferenced(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	drug := insertDrug(t, db, "d-1", "Paracetamol")

	res, err := db.Insert(ctx, "sale_invoices", remote.Row{"client_id": "s-1", "date": "2026-10-01"},
		&remote.Children{Table: "sale_invoice_items", ForeignKey: "invoice_id", Rows: []remote.Row{
			{"drug_id": drug, "name": "a", "quantity": 1},
		}})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.Delete(ctx, "drugs", drug); !errors.Is(err, ErrConstraint) {
		t.Errorf("delete referenced drug err = %v, want ErrConstraint", err)
	}
	if err := db.Delete(ctx, "sale_invoices", res.Key); err != nil {
		t.Fatalf("delete invoice: %v", err)
	}
	var n int
	db.conn.QueryRow(`SELECT COUNT(*) FROM sale_invoice_items`).Scan(&n)
	if n != 0 {
		t.Errorf("items = %d after invoice delete", n)
	}
	if err := db.Delete(ctx, "sale_invoices", res.Key); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestLookup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	key := insertDrug(t, db, "d-7", "Zinc")

	got, err := db.Lookup(ctx, "drugs", "d-7")
	if err != nil || got != key {
		t.Errorf("lookup = %d, %v; want %d", got, err, key)
	}
	if _, err := db.Lookup(ctx, "drugs", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeviceKeys(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	plain, dk, err := db.CreateDeviceKey("front-counter", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(plain, deviceKeyPrefix) {
		t.Errorf("plaintext prefix: %s", plain)
	}

	got, err := db.VerifyDeviceKey(plain)
	if err != nil || got == nil || got.ID != dk.ID {
		t.Fatalf("verify = %+v, %v", got, err)
	}
	if got, _ := db.VerifyDeviceKey("rx_live_wrong"); got != nil {
		t.Error("wrong key verified")
	}

	past := time.Now().Add(-time.Hour).UTC()
	expired, _, err := db.CreateDeviceKey("old-laptop", &past)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := db.VerifyDeviceKey(expired); got != nil {
		t.Error("expired key verified")
	}

	keys, err := db.ListDeviceKeys()
	if err != nil || len(keys) != 2 {
		t.Fatalf("list = %d, %v", len(keys), err)
	}
	if err := db.RevokeDeviceKey(dk.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if got, _ := db.VerifyDeviceKey(plain); got != nil {
		t.Error("revoked key verified")
	}
}

func TestRateLimitEvents(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.InsertRateLimitEvent("dk_1", "10.0.0.1", "write"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.InsertRateLimitEvent("", "10.0.0.2", "changes"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	events, err := db.RecentRateLimitEvents(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].KeyID != "" || events[0].EndpointClass != "changes" {
		t.Errorf("newest event = %+v", events[0])
	}
	if events[1].KeyID != "dk_1" {
		t.Errorf("key id = %q", events[1].KeyID)
	}

	n, err := db.CleanupRateLimitEvents(-time.Minute)
	if err != nil || n != 2 {
		t.Errorf("cleanup = %d, %v; want 2", n, err)
	}
}
