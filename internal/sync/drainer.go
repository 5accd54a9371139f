package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
	"github.com/marcus/rxsync/internal/remote"
	"github.com/marcus/rxsync/internal/translate"
)

// DefaultBatchSize bounds how many outbox entries one drain pass reads.
const DefaultBatchSize = 50

var (
	// ErrDeferred means an entry depends on a record whose create is still
	// queued ahead of it. The drain halts at the entry without entering the
	// error state.
	ErrDeferred = errors.New("waiting on an unsynced dependency")
	// ErrMalformed means an entry cannot describe any remote operation. It is
	// quarantined and the drain moves on.
	ErrMalformed = errors.New("malformed entry")
)

// Connectivity reports whether the remote store is believed reachable.
type Connectivity interface {
	Online() bool
}

// offlineMarker is implemented by connectivity sources that can be told a
// remote call just failed for network reasons.
type offlineMarker interface {
	MarkOffline()
}

// DrainResult summarises one Drain call.
type DrainResult struct {
	Skipped     bool // another drain was running
	Offline     bool
	Processed   int
	Quarantined int
	Deferred    bool
	FailedSeq   int64
	Err         error
	Remaining   int
}

// Drainer pushes outbox entries to the remote store in enqueue order.
type Drainer struct {
	store     *db.DB
	remote    remote.Store
	conn      Connectivity
	notifier  *Notifier
	batchSize int
	draining  atomic.Bool
}

// NewDrainer creates a drainer. A nil conn means always online; batchSize <= 0
// selects DefaultBatchSize.
func NewDrainer(store *db.DB, rs remote.Store, conn Connectivity, n *Notifier, batchSize int) *Drainer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if n == nil {
		n = NewNotifier()
	}
	return &Drainer{store: store, remote: rs, conn: conn, notifier: n, batchSize: batchSize}
}

// Notifier returns the status notifier the drainer publishes to.
func (d *Drainer) Notifier() *Notifier { return d.notifier }

// Draining reports whether a drain is in progress.
func (d *Drainer) Draining() bool { return d.draining.Load() }

// Drain runs one drain cycle: batches are processed until the outbox is
// empty, a batch comes back short, or an entry stops the cycle. Failures are
// reported through the notifier and the result, never as a returned error.
func (d *Drainer) Drain(ctx context.Context) DrainResult {
	if !d.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}
	}
	defer d.draining.Store(false)

	if d.conn != nil && !d.conn.Online() {
		n, _ := d.countPending(ctx)
		d.notifier.Publish(models.SyncStatus{State: models.SyncOffline, Pending: n})
		return DrainResult{Offline: true, Remaining: n}
	}

	var res DrainResult
	total, err := d.countPending(ctx)
	if err != nil {
		return d.fail(ctx, res, 0, err)
	}

	for {
		var rows []db.OutboxRow
		err := d.store.View(ctx, func(tx *db.Tx) error {
			var err error
			rows, err = tx.PendingEntries(d.batchSize)
			return err
		})
		if err != nil {
			return d.fail(ctx, res, 0, err)
		}
		if len(rows) == 0 {
			d.notifier.Publish(models.SyncStatus{State: models.SyncSynced})
			return res
		}

		for _, row := range rows {
			if ctx.Err() != nil {
				return d.halt(ctx, res)
			}
			done := res.Processed + res.Quarantined
			if done >= total {
				total = done + 1
			}
			d.notifier.Publish(models.SyncStatus{State: models.SyncSyncing, Processed: done, Total: total})

			err := d.process(ctx, row)
			switch {
			case err == nil:
				res.Processed++
				slog.Debug("drain: entry synced", "seq", row.Seq, "entity", row.Entity, "action", row.Action)
			case errors.Is(err, ErrMalformed):
				if qerr := d.quarantine(ctx, row, err); qerr != nil {
					return d.fail(ctx, res, row.Seq, qerr)
				}
				res.Quarantined++
			case errors.Is(err, ErrDeferred):
				slog.Info("drain: deferred", "seq", row.Seq, "entity", row.Entity, "reason", err)
				res.Deferred = true
				return d.halt(ctx, res)
			case remote.IsTransient(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				slog.Warn("drain: remote unavailable", "seq", row.Seq, "err", err)
				res.FailedSeq = row.Seq
				res.Err = err
				if m, ok := d.conn.(offlineMarker); ok && remote.IsTransient(err) {
					m.MarkOffline()
					n, _ := d.countPending(context.WithoutCancel(ctx))
					res.Remaining = n
					d.notifier.Publish(models.SyncStatus{State: models.SyncOffline, Pending: n, LastError: err.Error()})
					return res
				}
				return d.halt(ctx, res)
			default:
				return d.fail(ctx, res, row.Seq, err)
			}
		}

		if len(rows) < d.batchSize {
			return d.halt(ctx, res)
		}
	}
}

// halt ends the cycle without an error: the status becomes pending(n) or
// synced.
func (d *Drainer) halt(ctx context.Context, res DrainResult) DrainResult {
	n, err := d.countPending(context.WithoutCancel(ctx))
	if err != nil {
		slog.Warn("drain: count outbox", "err", err)
	}
	res.Remaining = n
	s := pendingStatus(n)
	if res.Err != nil {
		s.LastError = res.Err.Error()
	}
	d.notifier.Publish(s)
	return res
}

// fail ends the cycle in the error state. seq is the entry that failed, or 0
// when the failure was not tied to one.
func (d *Drainer) fail(ctx context.Context, res DrainResult, seq int64, cause error) DrainResult {
	ctx = context.WithoutCancel(ctx)
	slog.Warn("drain: halted", "seq", seq, "err", cause)
	if seq != 0 {
		err := d.store.WithTx(ctx, func(tx *db.Tx) error {
			return tx.RecordFailure(seq, cause.Error())
		})
		if err != nil {
			slog.Warn("drain: record failure", "seq", seq, "err", err)
		}
	}
	n, err := d.countPending(ctx)
	if err != nil {
		slog.Warn("drain: count outbox", "err", err)
	}
	res.FailedSeq = seq
	res.Err = cause
	res.Remaining = n
	d.notifier.Publish(models.SyncStatus{State: models.SyncError, Remaining: n, LastError: cause.Error()})
	return res
}

func (d *Drainer) quarantine(ctx context.Context, row db.OutboxRow, cause error) error {
	slog.Warn("drain: quarantined malformed entry", "seq", row.Seq, "entity", row.Entity, "err", cause)
	return d.store.WithTx(ctx, func(tx *db.Tx) error {
		return tx.Quarantine(row, cause.Error())
	})
}

func (d *Drainer) countPending(ctx context.Context) (int, error) {
	var n int
	err := d.store.View(ctx, func(tx *db.Tx) error {
		var err error
		n, err = tx.CountPending()
		return err
	})
	return n, err
}

func (d *Drainer) process(ctx context.Context, row db.OutboxRow) error {
	entry, err := row.Decode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch entry.Action {
	case models.ActionCreate:
		return d.create(ctx, entry)
	case models.ActionUpdate:
		return d.update(ctx, entry)
	default:
		return d.delete(ctx, entry)
	}
}

func (d *Drainer) create(ctx context.Context, entry models.OutboxEntry) error {
	w, err := d.translate(ctx, entry)
	if err != nil {
		return err
	}
	key, err := d.remote.Insert(ctx, w.Table, w.Row, w.Children)
	if err != nil {
		return fmt.Errorf("insert %s seq %d: %w", w.Table, entry.Seq, err)
	}
	return d.ack(ctx, entry, key, true)
}

func (d *Drainer) update(ctx context.Context, entry models.OutboxEntry) error {
	own, err := resolveOwnKey(ctx, d.store, d.remote, entry)
	if err != nil {
		return err
	}
	if !own.found {
		cause := fmt.Errorf("%s/%d has no remote key", entry.Entity, entry.LocalKey)
		var verdict error
		err := d.store.View(ctx, func(tx *db.Tx) error {
			verdict = waitOrFail(tx, entry.Seq, []keyRef{{entry.Entity, entry.LocalKey}}, cause)
			return nil
		})
		if err != nil {
			return err
		}
		return verdict
	}
	w, err := d.translate(ctx, entry)
	if err != nil {
		return err
	}
	if len(w.Row) == 0 && w.Children == nil {
		slog.Debug("drain: empty update", "seq", entry.Seq, "entity", entry.Entity)
		return d.ack(ctx, entry, own.key, own.persist && own.exists)
	}
	if err := d.remote.Update(ctx, w.Table, own.key, w.Row, w.Children); err != nil {
		return fmt.Errorf("update %s/%d seq %d: %w", w.Table, own.key, entry.Seq, err)
	}
	return d.ack(ctx, entry, own.key, own.persist && own.exists)
}

func (d *Drainer) delete(ctx context.Context, entry models.OutboxEntry) error {
	own, err := resolveOwnKey(ctx, d.store, d.remote, entry)
	if err != nil {
		return err
	}
	if !own.found {
		slog.Debug("drain: delete of a record never synced", "seq", entry.Seq, "entity", entry.Entity, "client_id", entry.Payload.ClientID)
		return d.ack(ctx, entry, 0, false)
	}
	table := translate.RemoteTable(entry.Entity)
	if err := d.remote.Delete(ctx, table, own.key); err != nil {
		return fmt.Errorf("delete %s/%d seq %d: %w", table, own.key, entry.Seq, err)
	}
	return d.ack(ctx, entry, own.key, own.persist && own.exists)
}

// translate runs the translator in a read transaction so foreign keys
// resolve against committed local state.
func (d *Drainer) translate(ctx context.Context, entry models.OutboxEntry) (remote.Write, error) {
	var w remote.Write
	err := d.store.View(ctx, func(tx *db.Tx) error {
		keys := &txKeys{tx: tx}
		var err error
		w, err = translate.ToRemote(entry.Entity, entry.Action, entry.Payload.Data, keys)
		if errors.Is(err, translate.ErrUnresolvedRef) {
			return waitOrFail(tx, entry.Seq, keys.unresolved, err)
		}
		return err
	})
	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, ErrDeferred), errors.Is(err, ErrMissingDependency):
		return w, err
	case errors.Is(err, translate.ErrBadValue), errors.Is(err, translate.ErrUnknownEntity):
		return w, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w, fmt.Errorf("translate seq %d: %w", entry.Seq, err)
}

// ack records the outcome of a remote call: the remote key (when it is new
// to the local record) and the removal of the entry commit together. A
// record deleted since enqueue gets the key on its tombstone instead.
func (d *Drainer) ack(ctx context.Context, entry models.OutboxEntry, key int64, persist bool) error {
	return d.store.WithTx(context.WithoutCancel(ctx), func(tx *db.Tx) error {
		if persist {
			err := tx.SetRemoteKey(entry.Entity, entry.LocalKey, key)
			if errors.Is(err, db.ErrNotFound) {
				err = tx.SetTombstoneRemoteKey(entry.Entity, entry.LocalKey, key)
			}
			if err != nil && !errors.Is(err, db.ErrNotFound) {
				return err
			}
		}
		if err := tx.DeleteEntry(entry.Seq); err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
		if _, err := tx.PruneTombstones(); err != nil {
			return err
		}
		return tx.RecordSyncHistory(db.SyncHistoryEntry{
			Direction: db.DirectionPush,
			Action:    string(entry.Action),
			Entity:    entry.Entity,
			LocalKey:  entry.LocalKey,
			RemoteKey: key,
			Seq:       entry.Seq,
		})
	})
}
