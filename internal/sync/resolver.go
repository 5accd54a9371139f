// Package sync drains the local outbox into the remote store, applies remote
// changes back into the local store and reports sync status.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
	"github.com/marcus/rxsync/internal/remote"
	"github.com/marcus/rxsync/internal/translate"
)

var (
	// ErrDanglingRef is returned when a payload references a local record
	// that no longer exists and left no tombstone, so its remote key can
	// never be known.
	ErrDanglingRef = errors.New("reference to a record that no longer exists locally")
	// ErrMissingDependency means an entry needs a record that has no remote
	// key and whose create is no longer queued (discarded or quarantined).
	// Nothing will ever unblock it without an operator.
	ErrMissingDependency = errors.New("depends on a record whose create is no longer queued")
)

// keyRef names one local record.
type keyRef struct {
	entity   string
	localKey int64
}

// txKeys resolves foreign keys for the translator from inside a local
// transaction. Deleted records resolve through their tombstone. References
// that exist but have no remote key yet are collected in unresolved.
type txKeys struct {
	tx         *db.Tx
	unresolved []keyRef
}

func (k *txKeys) RemoteKey(entity string, localKey int64) (int64, bool, error) {
	rec, err := k.tx.GetRecord(entity, localKey)
	if errors.Is(err, db.ErrNotFound) {
		ts, terr := k.tx.GetTombstone(entity, localKey)
		if errors.Is(terr, db.ErrNotFound) {
			return 0, false, fmt.Errorf("%w: %s/%d", ErrDanglingRef, entity, localKey)
		}
		if terr != nil {
			return 0, false, terr
		}
		if ts.RemoteKey != nil {
			return *ts.RemoteKey, true, nil
		}
		k.unresolved = append(k.unresolved, keyRef{entity, localKey})
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if rec.RemoteKey == nil {
		k.unresolved = append(k.unresolved, keyRef{entity, localKey})
		return 0, false, nil
	}
	return *rec.RemoteKey, true, nil
}

func (k *txKeys) LocalKey(entity string, remoteKey int64) (int64, bool, error) {
	rec, err := k.tx.QueryByRemoteKey(entity, remoteKey)
	if errors.Is(err, db.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rec.LocalKey, true, nil
}

var _ translate.KeyResolver = (*txKeys)(nil)

// waitOrFail classifies an entry at seq that needs refs to have remote keys.
// It is an ordering dependency only while a create for one of them is still
// queued ahead of it; otherwise the entry is stuck and must surface as an
// error.
func waitOrFail(tx *db.Tx, seq int64, refs []keyRef, cause error) error {
	for _, r := range refs {
		queued, err := tx.HasQueuedCreate(r.entity, r.localKey, seq)
		if err != nil {
			return err
		}
		if queued {
			return fmt.Errorf("%w: %v", ErrDeferred, cause)
		}
	}
	return fmt.Errorf("%w: %v", ErrMissingDependency, cause)
}

// ownKey is the resolved remote key of the record an entry is about.
type ownKey struct {
	key   int64
	found bool
	// persist is set when the key came from somewhere other than the local
	// record and should be written back to it.
	persist bool
	// exists is false when the local record is gone (deleted after enqueue).
	exists bool
}

// resolveOwnKey finds the remote key of the entry's own record: the local
// record or its tombstone first, then the key captured in the payload at
// enqueue time, then a remote lookup by client id.
func resolveOwnKey(ctx context.Context, store *db.DB, rs remote.Store, entry models.OutboxEntry) (ownKey, error) {
	var res ownKey
	err := store.View(ctx, func(tx *db.Tx) error {
		rec, err := tx.GetRecord(entry.Entity, entry.LocalKey)
		if errors.Is(err, db.ErrNotFound) {
			ts, err := tx.GetTombstone(entry.Entity, entry.LocalKey)
			if err == nil && ts.RemoteKey != nil {
				res.key, res.found = *ts.RemoteKey, true
				return nil
			}
			if errors.Is(err, db.ErrNotFound) {
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}
		res.exists = true
		if rec.RemoteKey != nil {
			res.key, res.found = *rec.RemoteKey, true
		}
		return nil
	})
	if err != nil || res.found {
		return res, err
	}

	if entry.Payload.RemoteKey != nil {
		res.key, res.found, res.persist = *entry.Payload.RemoteKey, true, true
		return res, nil
	}

	if entry.Payload.ClientID == "" {
		return res, nil
	}
	key, found, err := rs.Lookup(ctx, translate.RemoteTable(entry.Entity), entry.Payload.ClientID)
	if err != nil {
		return res, fmt.Errorf("lookup %s client=%s: %w", entry.Entity, entry.Payload.ClientID, err)
	}
	res.key, res.found, res.persist = key, found, found
	return res, nil
}
