// Package remote defines the contract of the authoritative remote store and an
// HTTP/WebSocket client for it.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Row is one remote row keyed by snake_case column name.
type Row map[string]any

// Children is the item list of a composite record (invoice lines). It is
// written in the same remote transaction as its header row.
type Children struct {
	Table      string `json:"table"`
	ForeignKey string `json:"foreign_key"`
	Rows       []Row  `json:"rows"`
}

// Write is a translated remote operation, ready for the Store.
type Write struct {
	Table    string
	Row      Row
	Children *Children
}

// ChangeType is the kind of remote change delivered on the change feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one committed remote change.
type Change struct {
	Table    string     `json:"table"`
	Type     ChangeType `json:"type"`
	Key      int64      `json:"key"`
	Row      Row        `json:"row,omitempty"`
	Children *Children  `json:"children,omitempty"`
	DeviceID string     `json:"device_id,omitempty"`
}

// Store is the remote store as seen by the drainer.
type Store interface {
	// Insert creates a row (and its children) and returns the remote key.
	// A row whose client_id already exists returns the existing key.
	Insert(ctx context.Context, table string, row Row, children *Children) (int64, error)
	// Update applies a partial row. Children, when set, replace the
	// existing item list.
	Update(ctx context.Context, table string, key int64, row Row, children *Children) error
	// Delete removes a row. Deleting a row that is already gone succeeds.
	Delete(ctx context.Context, table string, key int64) error
	// Lookup finds a row by the client-generated identifier.
	Lookup(ctx context.Context, table, clientID string) (key int64, found bool, err error)
}

// Subscriber delivers remote changes until ctx ends or the feed drops.
type Subscriber interface {
	Subscribe(ctx context.Context, tables []string, onChange func(Change)) error
}

// Pinger reports whether the remote store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	// ErrUnavailable marks transient failures: network, 5xx, throttling.
	ErrUnavailable = errors.New("remote store unavailable")
	// ErrNotFound is returned by reads of a row that does not exist.
	ErrNotFound = errors.New("remote row not found")
)

// RejectedError is a semantic rejection by the remote store: a constraint
// violation, a missing foreign row, a permission denial or a vanished row.
// Retrying the same request will fail the same way.
type RejectedError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote rejected (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote rejected (%d %s)", e.Status, e.Code)
}

// IsTransient reports whether err is worth retrying unchanged later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRejected reports whether err is a semantic rejection.
func IsRejected(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej)
}
