package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/marcus/rxsync/internal/models"
)

// GetSetting returns the raw JSON value stored under key, or ErrNotFound.
func (t *Tx) GetSetting(key string) (json.RawMessage, error) {
	var data string
	err := t.tx.QueryRow(
		`SELECT data FROM settings WHERE json_extract(data, '$.key') = ?`, key,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: setting %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %q: %w", key, err)
	}

	var s struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode setting %q: %w", key, err)
	}
	if s.Value == nil {
		return json.RawMessage("null"), nil
	}
	return s.Value, nil
}

// PutSetting creates or updates a setting. Settings are a synced entity, so a
// local write is queued like any other.
func (t *Tx) PutSetting(key string, value any, origin Origin) (int64, error) {
	var localKey int64
	err := t.tx.QueryRow(
		`SELECT id FROM settings WHERE json_extract(data, '$.key') = ?`, key,
	).Scan(&localKey)
	switch {
	case err == sql.ErrNoRows:
		return t.CreateRecord(models.EntitySettings, map[string]any{"key": key, "value": value}, origin)
	case err != nil:
		return 0, fmt.Errorf("find setting %q: %w", key, err)
	}
	return localKey, t.UpdateRecord(models.EntitySettings, localKey, map[string]any{"value": value}, origin)
}
