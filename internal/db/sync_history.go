package db

import (
	"fmt"
	"time"
)

// Directions recorded in sync_history.
const (
	DirectionPush = "push"
	DirectionPull = "pull"
)

// MaxHistoryRows bounds sync_history; older rows are pruned on insert.
const MaxHistoryRows = 1000

// SyncHistoryEntry represents a row from the sync_history table.
type SyncHistoryEntry struct {
	ID        int64
	Direction string // "push" or "pull"
	Action    string // "create", "update", "delete" (pull uses the feed's insert/update/delete)
	Entity    string
	LocalKey  int64
	RemoteKey int64
	Seq       int64 // outbox seq for pushes, 0 for pulls
	Timestamp time.Time
}

const syncHistoryDDL = `
-- Audit trail of what the sync engine pushed and pulled
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    direction TEXT NOT NULL,
    action TEXT NOT NULL,
    entity TEXT NOT NULL,
    local_key INTEGER NOT NULL DEFAULT 0,
    remote_key INTEGER NOT NULL DEFAULT 0,
    seq INTEGER NOT NULL DEFAULT 0,
    timestamp TEXT NOT NULL
);
`

// RecordSyncHistory appends one history row and prunes the table to
// MaxHistoryRows.
func (t *Tx) RecordSyncHistory(e SyncHistoryEntry) error {
	_, err := t.tx.Exec(`
		INSERT INTO sync_history (direction, action, entity, local_key, remote_key, seq, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Direction, e.Action, e.Entity, e.LocalKey, e.RemoteKey, e.Seq, formatTime(t.now))
	if err != nil {
		return fmt.Errorf("record sync history: %w", err)
	}
	return t.PruneSyncHistory(MaxHistoryRows)
}

// PruneSyncHistory deletes rows not in the newest maxRows entries.
func (t *Tx) PruneSyncHistory(maxRows int) error {
	_, err := t.tx.Exec(`
		DELETE FROM sync_history WHERE id NOT IN (
			SELECT id FROM sync_history ORDER BY id DESC LIMIT ?
		)
	`, maxRows)
	return err
}

const historyColumns = `id, direction, action, entity, local_key, remote_key, seq, timestamp`

// SyncHistoryTail returns the last N entries in chronological order (oldest first).
func (t *Tx) SyncHistoryTail(limit int) ([]SyncHistoryEntry, error) {
	entries, err := t.queryHistory(`SELECT `+historyColumns+` FROM sync_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// SyncHistoryAfter returns entries with id > afterID, oldest first. Used for
// follow-mode polling.
func (t *Tx) SyncHistoryAfter(afterID int64, limit int) ([]SyncHistoryEntry, error) {
	return t.queryHistory(`SELECT `+historyColumns+` FROM sync_history WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
}

func (t *Tx) queryHistory(query string, args ...any) ([]SyncHistoryEntry, error) {
	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SyncHistoryEntry
	for rows.Next() {
		var e SyncHistoryEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.Direction, &e.Action, &e.Entity, &e.LocalKey, &e.RemoteKey, &e.Seq, &ts); err != nil {
			return nil, err
		}
		parsed, err := parseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		e.Timestamp = parsed
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
