package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/remote"
	"github.com/marcus/rxsync/internal/translate"
)

// ApplyRemote applies one change from the remote feed to the local store.
// Every write is made with db.OriginRemote, so nothing is queued back out.
// Changes that reference records not known locally yet are skipped.
func ApplyRemote(ctx context.Context, store *db.DB, ch remote.Change) error {
	s, ok := translate.LookupTable(ch.Table)
	if !ok {
		slog.Debug("inbound: ignoring change for unknown table", "table", ch.Table)
		return nil
	}
	entity := s.Entity

	err := store.WithTx(ctx, func(tx *db.Tx) error {
		if ch.Type == remote.ChangeDelete {
			rec, err := tx.QueryByRemoteKey(entity, ch.Key)
			if errors.Is(err, db.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := tx.DeleteRecord(entity, rec.LocalKey, db.OriginRemote); err != nil {
				return err
			}
			return pulled(tx, ch, entity, rec.LocalKey)
		}

		payload, err := translate.FromRemote(entity, ch.Row, ch.Children, &txKeys{tx: tx})
		if err != nil {
			return err
		}

		if rec, err := tx.QueryByRemoteKey(entity, ch.Key); err == nil {
			if err := tx.UpdateRecord(entity, rec.LocalKey, payload, db.OriginRemote); err != nil {
				return err
			}
			return pulled(tx, ch, entity, rec.LocalKey)
		} else if !errors.Is(err, db.ErrNotFound) {
			return err
		}

		if clientID, _ := payload["clientId"].(string); clientID != "" {
			rec, err := tx.QueryByClientID(entity, clientID)
			if err == nil {
				if err := tx.SetRemoteKey(entity, rec.LocalKey, ch.Key); err != nil {
					return err
				}
				if err := tx.UpdateRecord(entity, rec.LocalKey, payload, db.OriginRemote); err != nil {
					return err
				}
				return pulled(tx, ch, entity, rec.LocalKey)
			}
			if !errors.Is(err, db.ErrNotFound) {
				return err
			}
		}

		localKey, err := tx.CreateRecord(entity, payload, db.OriginRemote)
		if err != nil {
			return err
		}
		if err := tx.SetRemoteKey(entity, localKey, ch.Key); err != nil {
			return err
		}
		return pulled(tx, ch, entity, localKey)
	})
	if errors.Is(err, translate.ErrUnresolvedRef) {
		slog.Warn("inbound: dropping change with unknown reference", "table", ch.Table, "key", ch.Key, "err", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s %s/%d: %w", ch.Type, ch.Table, ch.Key, err)
	}
	slog.Debug("inbound: applied", "table", ch.Table, "type", ch.Type, "key", ch.Key)
	return nil
}

func pulled(tx *db.Tx, ch remote.Change, entity string, localKey int64) error {
	return tx.RecordSyncHistory(db.SyncHistoryEntry{
		Direction: db.DirectionPull,
		Action:    string(ch.Type),
		Entity:    entity,
		LocalKey:  localKey,
		RemoteKey: ch.Key,
	})
}
