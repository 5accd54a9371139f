package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/marcus/rxsync/internal/models"
)

// Origin says where a mutation came from. Remote-origin writes are replays of
// changes the remote store already has and must not be queued again.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

// Keys the store owns; they are stripped from business data on write and
// re-attached by Record.Payload.
const (
	keyID       = "id"
	keyClientID = "clientId"
	keyRemote   = "remoteKey"
)

// Record is one row of a synced entity table.
type Record struct {
	Entity    string
	LocalKey  int64
	ClientID  string
	RemoteKey *int64
	Data      map[string]any
	CreatedAt string
	UpdatedAt string
}

// Payload returns the business data with the local key and client id attached.
func (r *Record) Payload() map[string]any {
	out := make(map[string]any, len(r.Data)+2)
	maps.Copy(out, r.Data)
	out[keyID] = r.LocalKey
	out[keyClientID] = r.ClientID
	return out
}

func checkEntity(entity string) error {
	if !models.IsSyncedEntity(entity) {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	return nil
}

// quoteTable quotes a validated entity name for use as an SQL identifier.
func quoteTable(entity string) string {
	return `"` + entity + `"`
}

// businessData copies payload without the store-owned keys.
func businessData(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch k {
		case keyID, keyClientID, keyRemote:
			continue
		}
		out[k] = v
	}
	return out
}

// CreateRecord inserts a record and returns its local key. A client id in
// the payload is kept (remote-origin records carry one); otherwise a new one
// is generated.
func (t *Tx) CreateRecord(entity string, payload map[string]any, origin Origin) (int64, error) {
	if err := checkEntity(entity); err != nil {
		return 0, err
	}

	clientID, _ := payload[keyClientID].(string)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	data := businessData(payload)
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", entity, err)
	}

	now := formatTime(t.now)
	res, err := t.tx.Exec(
		fmt.Sprintf(`INSERT INTO %s (client_id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`, quoteTable(entity)),
		clientID, string(raw), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", entity, err)
	}
	localKey, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	if origin == OriginLocal {
		full := maps.Clone(data)
		full[keyID] = localKey
		full[keyClientID] = clientID
		err = t.enqueue(entity, models.ActionCreate, localKey, models.OutboxPayload{
			ID:       localKey,
			ClientID: clientID,
			Data:     full,
		})
		if err != nil {
			return 0, err
		}
	}
	return localKey, nil
}

// UpdateRecord merges partial into the stored record. The outbox entry carries
// only the fields whose values actually changed.
func (t *Tx) UpdateRecord(entity string, localKey int64, partial map[string]any, origin Origin) error {
	rec, err := t.GetRecord(entity, localKey)
	if err != nil {
		return err
	}

	changes := changedFields(rec.Data, businessData(partial))
	merged := maps.Clone(rec.Data)
	maps.Copy(merged, changes)

	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal %s/%d: %w", entity, localKey, err)
	}
	_, err = t.tx.Exec(
		fmt.Sprintf(`UPDATE %s SET data = ?, updated_at = ? WHERE id = ?`, quoteTable(entity)),
		string(raw), formatTime(t.now), localKey,
	)
	if err != nil {
		return fmt.Errorf("update %s/%d: %w", entity, localKey, err)
	}

	if origin == OriginLocal {
		return t.enqueue(entity, models.ActionUpdate, localKey, models.OutboxPayload{
			ID:        localKey,
			ClientID:  rec.ClientID,
			RemoteKey: rec.RemoteKey,
			Data:      changes,
		})
	}
	return nil
}

// DeleteRecord removes a record. A local delete leaves a key tombstone behind
// for entries still queued against the record. The outbox
// entry carries the remote key when one is known, and the client id so a
// late-synced create can still be found.
func (t *Tx) DeleteRecord(entity string, localKey int64, origin Origin) error {
	rec, err := t.GetRecord(entity, localKey)
	if err != nil {
		return err
	}

	if _, err := t.tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, quoteTable(entity)), localKey); err != nil {
		return fmt.Errorf("delete %s/%d: %w", entity, localKey, err)
	}
	if origin == OriginLocal {
		if err := t.putTombstone(rec); err != nil {
			return err
		}
		return t.enqueue(entity, models.ActionDelete, localKey, models.OutboxPayload{
			ID:        localKey,
			ClientID:  rec.ClientID,
			RemoteKey: rec.RemoteKey,
		})
	}
	return nil
}

const recordColumns = `id, client_id, remote_key, data, created_at, updated_at`

// GetRecord returns the record with the given local key or ErrNotFound.
func (t *Tx) GetRecord(entity string, localKey int64) (*Record, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	row := t.tx.QueryRow(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, recordColumns, quoteTable(entity)), localKey)
	rec, err := scanRecord(entity, row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, entity, localKey)
	}
	return rec, err
}

// QueryByRemoteKey returns the record mapped to remoteKey or ErrNotFound.
func (t *Tx) QueryByRemoteKey(entity string, remoteKey int64) (*Record, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	row := t.tx.QueryRow(fmt.Sprintf(`SELECT %s FROM %s WHERE remote_key = ?`, recordColumns, quoteTable(entity)), remoteKey)
	rec, err := scanRecord(entity, row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s remote=%d", ErrNotFound, entity, remoteKey)
	}
	return rec, err
}

// QueryByClientID returns the record with the given client id or ErrNotFound.
func (t *Tx) QueryByClientID(entity, clientID string) (*Record, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	row := t.tx.QueryRow(fmt.Sprintf(`SELECT %s FROM %s WHERE client_id = ?`, recordColumns, quoteTable(entity)), clientID)
	rec, err := scanRecord(entity, row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s client=%s", ErrNotFound, entity, clientID)
	}
	return rec, err
}

// SetRemoteKey stores the remote key for a local record. It never enqueues.
// Writing the same key twice is a no-op, which keeps ack replays safe.
func (t *Tx) SetRemoteKey(entity string, localKey, remoteKey int64) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	res, err := t.tx.Exec(
		fmt.Sprintf(`UPDATE %s SET remote_key = ? WHERE id = ?`, quoteTable(entity)),
		remoteKey, localKey,
	)
	if err != nil {
		return fmt.Errorf("set remote key %s/%d: %w", entity, localKey, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%d", ErrNotFound, entity, localKey)
	}
	return nil
}

// ListRecords returns up to limit records ordered by local key.
func (t *Tx) ListRecords(entity string, limit int) ([]Record, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(fmt.Sprintf(`SELECT %s FROM %s ORDER BY id ASC LIMIT ?`, recordColumns, quoteTable(entity)), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", entity, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(entity, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(entity string, row rowScanner) (*Record, error) {
	var (
		rec       Record
		remoteKey sql.NullInt64
		data      string
	)
	if err := row.Scan(&rec.LocalKey, &rec.ClientID, &remoteKey, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Entity = entity
	if remoteKey.Valid {
		k := remoteKey.Int64
		rec.RemoteKey = &k
	}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("decode %s/%d: %w", entity, rec.LocalKey, err)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	return &rec, nil
}
