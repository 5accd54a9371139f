package db

import (
	"database/sql"
	"fmt"
)

// Tombstone remembers the keys of a deleted record so that queued entries
// referencing it can still be translated after it is gone locally.
type Tombstone struct {
	Entity    string
	LocalKey  int64
	ClientID  string
	RemoteKey *int64
}

const tombstonesDDL = `
-- Keys of deleted records, kept while queued entries may still reference them
CREATE TABLE IF NOT EXISTS key_tombstones (
    entity TEXT NOT NULL,
    local_key INTEGER NOT NULL,
    client_id TEXT NOT NULL,
    remote_key INTEGER,
    deleted_at TEXT NOT NULL,
    PRIMARY KEY (entity, local_key)
);
`

func (t *Tx) putTombstone(rec *Record) error {
	_, err := t.tx.Exec(`
		INSERT OR REPLACE INTO key_tombstones (entity, local_key, client_id, remote_key, deleted_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Entity, rec.LocalKey, rec.ClientID, rec.RemoteKey, formatTime(t.now))
	if err != nil {
		return fmt.Errorf("tombstone %s/%d: %w", rec.Entity, rec.LocalKey, err)
	}
	return nil
}

// GetTombstone returns the tombstone of a deleted record or ErrNotFound.
func (t *Tx) GetTombstone(entity string, localKey int64) (*Tombstone, error) {
	ts := Tombstone{Entity: entity, LocalKey: localKey}
	var remoteKey sql.NullInt64
	err := t.tx.QueryRow(
		`SELECT client_id, remote_key FROM key_tombstones WHERE entity = ? AND local_key = ?`,
		entity, localKey,
	).Scan(&ts.ClientID, &remoteKey)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: tombstone %s/%d", ErrNotFound, entity, localKey)
	}
	if err != nil {
		return nil, fmt.Errorf("get tombstone %s/%d: %w", entity, localKey, err)
	}
	if remoteKey.Valid {
		ts.RemoteKey = &remoteKey.Int64
	}
	return &ts, nil
}

// SetTombstoneRemoteKey records the remote key of a record whose create
// synced after it was deleted locally.
func (t *Tx) SetTombstoneRemoteKey(entity string, localKey, remoteKey int64) error {
	res, err := t.tx.Exec(
		`UPDATE key_tombstones SET remote_key = ? WHERE entity = ? AND local_key = ?`,
		remoteKey, entity, localKey,
	)
	if err != nil {
		return fmt.Errorf("set tombstone key %s/%d: %w", entity, localKey, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: tombstone %s/%d", ErrNotFound, entity, localKey)
	}
	return nil
}

// PruneTombstones drops every tombstone once the outbox is empty, since no
// queued entry can reference them any more. It returns how many were removed.
func (t *Tx) PruneTombstones() (int, error) {
	res, err := t.tx.Exec(`DELETE FROM key_tombstones WHERE NOT EXISTS (SELECT 1 FROM outbox)`)
	if err != nil {
		return 0, fmt.Errorf("prune tombstones: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
