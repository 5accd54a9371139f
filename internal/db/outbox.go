package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marcus/rxsync/internal/models"
)

// ErrMalformedEntry is returned by OutboxRow.Decode when a stored entry cannot
// be interpreted.
var ErrMalformedEntry = errors.New("malformed outbox entry")

// OutboxRow is an outbox entry as stored. Decoding is separate so that a
// corrupt row can still be quarantined by seq.
type OutboxRow struct {
	Seq        int64
	Entity     string
	Action     string
	LocalKey   int64
	RawPayload string
	EnqueuedAt string
}

// Decode validates the row and returns the typed entry.
func (r OutboxRow) Decode() (models.OutboxEntry, error) {
	entry := models.OutboxEntry{
		Seq:      r.Seq,
		Entity:   r.Entity,
		Action:   models.ActionType(r.Action),
		LocalKey: r.LocalKey,
	}
	if !models.IsSyncedEntity(r.Entity) {
		return entry, fmt.Errorf("%w: seq %d: unknown entity %q", ErrMalformedEntry, r.Seq, r.Entity)
	}
	if !entry.Action.Valid() {
		return entry, fmt.Errorf("%w: seq %d: unknown action %q", ErrMalformedEntry, r.Seq, r.Action)
	}
	if err := json.Unmarshal([]byte(r.RawPayload), &entry.Payload); err != nil {
		return entry, fmt.Errorf("%w: seq %d: payload: %v", ErrMalformedEntry, r.Seq, err)
	}
	if entry.Action == models.ActionCreate && entry.Payload.Data == nil {
		return entry, fmt.Errorf("%w: seq %d: create without data", ErrMalformedEntry, r.Seq)
	}
	if ts, err := parseTimestamp(r.EnqueuedAt); err == nil {
		entry.EnqueuedAt = ts
	}
	return entry, nil
}

const outboxColumns = `seq, entity, action, local_key, payload, enqueued_at`

func scanOutboxRow(row rowScanner) (OutboxRow, error) {
	var r OutboxRow
	err := row.Scan(&r.Seq, &r.Entity, &r.Action, &r.LocalKey, &r.RawPayload, &r.EnqueuedAt)
	return r, err
}

// PendingEntries returns up to limit entries in enqueue order.
func (t *Tx) PendingEntries(limit int) ([]OutboxRow, error) {
	rows, err := t.tx.Query(`SELECT `+outboxColumns+` FROM outbox ORDER BY seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		r, err := scanOutboxRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetEntry returns one pending entry or ErrNotFound.
func (t *Tx) GetEntry(seq int64) (OutboxRow, error) {
	r, err := scanOutboxRow(t.tx.QueryRow(`SELECT `+outboxColumns+` FROM outbox WHERE seq = ?`, seq))
	if err == sql.ErrNoRows {
		return r, fmt.Errorf("%w: outbox seq %d", ErrNotFound, seq)
	}
	if err != nil {
		return r, fmt.Errorf("get outbox seq %d: %w", seq, err)
	}
	return r, nil
}

// CountPending returns the number of entries still in the outbox.
func (t *Tx) CountPending() (int, error) {
	var n int
	if err := t.tx.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}

// HasQueuedCreate reports whether a create for entity/localKey is still
// queued ahead of seq.
func (t *Tx) HasQueuedCreate(entity string, localKey, seq int64) (bool, error) {
	var n int
	err := t.tx.QueryRow(
		`SELECT COUNT(*) FROM outbox WHERE entity = ? AND local_key = ? AND action = ? AND seq < ?`,
		entity, localKey, string(models.ActionCreate), seq,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("find queued create %s/%d: %w", entity, localKey, err)
	}
	return n > 0, nil
}

// DeleteEntry removes an acknowledged entry and its failure record.
func (t *Tx) DeleteEntry(seq int64) error {
	res, err := t.tx.Exec(`DELETE FROM outbox WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("delete outbox seq %d: %w", seq, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: outbox seq %d", ErrNotFound, seq)
	}
	if _, err := t.tx.Exec(`DELETE FROM outbox_failures WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("clear failure seq %d: %w", seq, err)
	}
	return nil
}

// RecordFailure bumps the attempt counter of a stuck entry.
func (t *Tx) RecordFailure(seq int64, cause string) error {
	_, err := t.tx.Exec(`
		INSERT INTO outbox_failures (seq, attempts, last_error, failed_at) VALUES (?, 1, ?, ?)
		ON CONFLICT(seq) DO UPDATE SET attempts = attempts + 1, last_error = excluded.last_error, failed_at = excluded.failed_at`,
		seq, cause, formatTime(t.now),
	)
	if err != nil {
		return fmt.Errorf("record failure seq %d: %w", seq, err)
	}
	return nil
}

// ListFailures returns the failure records of entries still pending.
func (t *Tx) ListFailures() ([]models.EntryFailure, error) {
	rows, err := t.tx.Query(`
		SELECT f.seq, f.attempts, f.last_error, f.failed_at
		FROM outbox_failures f JOIN outbox o ON o.seq = f.seq
		ORDER BY f.seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []models.EntryFailure
	for rows.Next() {
		var (
			f  models.EntryFailure
			at string
		)
		if err := rows.Scan(&f.Seq, &f.Attempts, &f.LastError, &at); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.FailedAt, _ = parseTimestamp(at)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ClearFailures drops all failure bookkeeping. Pending entries are untouched.
func (t *Tx) ClearFailures() error {
	if _, err := t.tx.Exec(`DELETE FROM outbox_failures`); err != nil {
		return fmt.Errorf("clear failures: %w", err)
	}
	return nil
}

// Quarantine moves an entry out of the outbox into outbox_quarantine.
func (t *Tx) Quarantine(r OutboxRow, reason string) error {
	_, err := t.tx.Exec(
		`INSERT OR REPLACE INTO outbox_quarantine (seq, entity, action, payload, reason, quarantined_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Seq, r.Entity, r.Action, r.RawPayload, reason, formatTime(t.now),
	)
	if err != nil {
		return fmt.Errorf("quarantine seq %d: %w", r.Seq, err)
	}
	return t.DeleteEntry(r.Seq)
}

// DiscardEntry is the operator path for a permanently failing entry: the
// entry is quarantined so the queue can move past it.
func (t *Tx) DiscardEntry(seq int64) error {
	r, err := t.GetEntry(seq)
	if err != nil {
		return err
	}
	return t.Quarantine(r, "discarded by operator")
}

// ResetOutbox quarantines every pending entry and returns how many moved.
func (t *Tx) ResetOutbox() (int, error) {
	rows, err := t.PendingEntries(-1)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := t.Quarantine(r, "outbox reset by operator"); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

// ListQuarantine returns quarantined entries, newest first.
func (t *Tx) ListQuarantine(limit int) ([]models.QuarantinedEntry, error) {
	rows, err := t.tx.Query(`
		SELECT seq, entity, action, payload, reason, quarantined_at
		FROM outbox_quarantine ORDER BY quarantined_at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query quarantine: %w", err)
	}
	defer rows.Close()

	var out []models.QuarantinedEntry
	for rows.Next() {
		var (
			q  models.QuarantinedEntry
			at string
		)
		if err := rows.Scan(&q.Seq, &q.Entity, &q.Action, &q.RawPayload, &q.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan quarantine: %w", err)
		}
		q.QuarantinedAt, _ = parseTimestamp(at)
		out = append(out, q)
	}
	return out, rows.Err()
}

// CountQuarantine returns the number of quarantined entries.
func (t *Tx) CountQuarantine() (int, error) {
	var n int
	if err := t.tx.QueryRow(`SELECT COUNT(*) FROM outbox_quarantine`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count quarantine: %w", err)
	}
	return n, nil
}
