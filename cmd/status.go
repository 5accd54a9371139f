package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
	"github.com/marcus/rxsync/internal/output"
	"github.com/marcus/rxsync/internal/syncconfig"
	"github.com/spf13/cobra"
)

// storeSnapshot is what status reads from the store in one transaction.
type storeSnapshot struct {
	Pending     int
	Head        *models.OutboxEntry
	Failures    []models.EntryFailure
	Quarantined int
	LastPush    time.Time
	LastPull    time.Time
}

func readSnapshot(tx *db.Tx) (storeSnapshot, error) {
	var snap storeSnapshot
	var err error
	if snap.Pending, err = tx.CountPending(); err != nil {
		return snap, err
	}
	head, err := tx.PendingEntries(1)
	if err != nil {
		return snap, err
	}
	if len(head) == 1 {
		e, _ := head[0].Decode()
		snap.Head = &e
	}
	if snap.Failures, err = tx.ListFailures(); err != nil {
		return snap, err
	}
	if snap.Quarantined, err = tx.CountQuarantine(); err != nil {
		return snap, err
	}
	history, err := tx.SyncHistoryTail(db.MaxHistoryRows)
	if err != nil {
		return snap, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Direction == db.DirectionPush && snap.LastPush.IsZero() {
			snap.LastPush = h.Timestamp
		}
		if h.Direction == db.DirectionPull && snap.LastPull.IsZero() {
			snap.LastPull = h.Timestamp
		}
	}
	return snap, nil
}

// deriveStatus rebuilds the sync status another process would publish from
// what is on disk: a failure recorded against the head entry means the
// queue is stuck.
func deriveStatus(online bool, snap storeSnapshot) models.SyncStatus {
	if !online {
		return models.SyncStatus{State: models.SyncOffline, Pending: snap.Pending}
	}
	if snap.Head != nil {
		for _, f := range snap.Failures {
			if f.Seq == snap.Head.Seq {
				return models.SyncStatus{State: models.SyncError, Remaining: snap.Pending, LastError: f.LastError}
			}
		}
	}
	if snap.Pending > 0 {
		return models.SyncStatus{State: models.SyncPending, Pending: snap.Pending}
	}
	return models.SyncStatus{State: models.SyncSynced}
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show sync state, queued changes and connectivity",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var snap storeSnapshot
		err = database.View(context.Background(), func(tx *db.Tx) error {
			var err error
			snap, err = readSnapshot(tx)
			return err
		})
		if err != nil {
			output.Error("%v", err)
			return err
		}

		online := false
		if skip, _ := cmd.Flags().GetBool("no-probe"); !skip {
			e, err := newEngine(database)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			online = e.probe.Check(ctx)
			cancel()
		}
		status := deriveStatus(online, snap)

		if jsonOutput(cmd) {
			return output.JSON(map[string]any{
				"status":      status,
				"server":      syncconfig.GetServerURL(),
				"online":      online,
				"pending":     snap.Pending,
				"quarantined": snap.Quarantined,
				"lastPush":    snap.LastPush,
				"lastPull":    snap.LastPull,
			})
		}

		fmt.Println(output.FormatStatus(status))
		fmt.Println()
		fmt.Printf("Server:      %s", syncconfig.GetServerURL())
		if !syncconfig.IsAuthenticated() {
			fmt.Print("  (no API key)")
		}
		fmt.Println()
		fmt.Printf("Queued:      %d\n", snap.Pending)
		if snap.Head != nil {
			fmt.Printf("Next:        %s\n", output.FormatEntry(*snap.Head, 0, "", output.TerminalWidth(0)-13))
		}
		fmt.Printf("Quarantined: %d\n", snap.Quarantined)
		fmt.Printf("Last push:   %s\n", output.FormatTimeAgo(snap.LastPush))
		fmt.Printf("Last pull:   %s\n", output.FormatTimeAgo(snap.LastPull))

		if len(snap.Failures) > 0 {
			fmt.Print(output.SectionHeader("Failing entries"))
			for _, f := range snap.Failures {
				fmt.Printf("  seq %d: %d attempt(s), last %s: %s\n", f.Seq, f.Attempts, output.FormatTimeAgo(f.FailedAt), f.LastError)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("no-probe", false, "Do not contact the server; report as offline")
	rootCmd.AddCommand(statusCmd)
}
