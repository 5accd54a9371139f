package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// RateLimitEvent records one rejected request.
type RateLimitEvent struct {
	ID            int64
	KeyID         string // empty for IP-based limits
	IP            string
	EndpointClass string // write, read, changes
	CreatedAt     time.Time
}

// InsertRateLimitEvent stores a rate limit rejection. An empty keyID is NULL.
func (db *ServerDB) InsertRateLimitEvent(keyID, ip, endpointClass string) error {
	var key sql.NullString
	if keyID != "" {
		key = sql.NullString{String: keyID, Valid: true}
	}
	_, err := db.conn.Exec(
		`INSERT INTO rate_limit_events (key_id, ip, endpoint_class, created_at) VALUES (?, ?, ?, ?)`,
		key, ip, endpointClass, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert rate limit event: %w", err)
	}
	return nil
}

// RecentRateLimitEvents returns the newest events first.
func (db *ServerDB) RecentRateLimitEvents(limit int) ([]RateLimitEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(
		`SELECT id, key_id, ip, endpoint_class, created_at FROM rate_limit_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rate limit events: %w", err)
	}
	defer rows.Close()

	var events []RateLimitEvent
	for rows.Next() {
		var e RateLimitEvent
		var key sql.NullString
		if err := rows.Scan(&e.ID, &key, &e.IP, &e.EndpointClass, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rate limit event: %w", err)
		}
		e.KeyID = key.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// CleanupRateLimitEvents deletes events older than the given duration and
// returns how many were removed.
func (db *ServerDB) CleanupRateLimitEvents(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := db.conn.Exec(`DELETE FROM rate_limit_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
