package db

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/marcus/rxsync/internal/models"
)

// enqueue appends one outbox entry inside the caller's transaction. It is the
// only writer of the outbox table; a failed append fails the whole mutation.
func (t *Tx) enqueue(entity string, action models.ActionType, localKey int64, payload models.OutboxPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = t.tx.Exec(
		`INSERT INTO outbox (entity, action, local_key, payload, enqueued_at) VALUES (?, ?, ?, ?, ?)`,
		entity, string(action), localKey, string(raw), formatTime(t.now),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s %s/%d: %w", action, entity, localKey, err)
	}
	return nil
}

// changedFields returns the entries of partial whose JSON value differs from
// the stored one. Values are compared in their encoded form so that an int
// from the caller equals the float64 the store decoded.
func changedFields(stored, partial map[string]any) map[string]any {
	changes := make(map[string]any, len(partial))
	for k, v := range partial {
		old, ok := stored[k]
		if ok && sameJSON(old, v) {
			continue
		}
		changes[k] = v
	}
	return changes
}

func sameJSON(a, b any) bool {
	ra, err := json.Marshal(a)
	if err != nil {
		return false
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}
