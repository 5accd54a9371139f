package monitor

import (
	"context"
	"time"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
)

// FetchData retrieves all data needed for the monitor display
func FetchData(database *db.DB, limit int) RefreshDataMsg {
	msg := RefreshDataMsg{
		Timestamp: time.Now(),
	}

	msg.Err = database.View(context.Background(), func(tx *db.Tx) error {
		pending, err := tx.CountPending()
		if err != nil {
			return err
		}
		msg.Pending = pending

		if msg.Quarantined, err = tx.CountQuarantine(); err != nil {
			return err
		}

		if msg.Queue, err = fetchQueue(tx, limit); err != nil {
			return err
		}

		history, err := tx.SyncHistoryTail(limit)
		if err != nil {
			return err
		}
		// Newest first for display
		for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
			history[i], history[j] = history[j], history[i]
		}
		msg.History = history
		return nil
	})

	return msg
}

// fetchQueue joins the head of the outbox with its failure records.
// Undecodable rows keep the fields Decode could fill.
func fetchQueue(tx *db.Tx, limit int) ([]QueueRow, error) {
	rows, err := tx.PendingEntries(limit)
	if err != nil {
		return nil, err
	}
	failures, err := tx.ListFailures()
	if err != nil {
		return nil, err
	}
	bySeq := make(map[int64]models.EntryFailure, len(failures))
	for _, f := range failures {
		bySeq[f.Seq] = f
	}

	queue := make([]QueueRow, 0, len(rows))
	for _, r := range rows {
		entry, _ := r.Decode()
		row := QueueRow{Entry: entry}
		if f, ok := bySeq[r.Seq]; ok {
			row.Attempts = f.Attempts
			row.LastError = f.LastError
		}
		queue = append(queue, row)
	}
	return queue, nil
}
