package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/output"
	"github.com/marcus/rxsync/internal/remote"
	rxsync "github.com/marcus/rxsync/internal/sync"
	"github.com/marcus/rxsync/internal/syncconfig"
	"github.com/spf13/cobra"
)

// openStore opens the store in the working directory, reporting failures.
func openStore() (*db.DB, error) {
	database, err := db.Open(getBaseDir())
	if err != nil {
		output.Error("%v", err)
		return nil, err
	}
	return database, nil
}

// jsonOutput reports whether --json was given.
func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// engine bundles the pieces every sync entry point needs.
type engine struct {
	client  *remote.Client
	probe   *rxsync.Probe
	drainer *rxsync.Drainer
}

// newEngine wires a remote client, connectivity probe and drainer for
// database using the user-level sync settings.
func newEngine(database *db.DB) (*engine, error) {
	deviceID, err := syncconfig.GetDeviceID()
	if err != nil {
		return nil, err
	}
	client := remote.New(syncconfig.GetServerURL(), syncconfig.GetAPIKey(), deviceID)
	probe := rxsync.NewProbe(client, syncconfig.GetProbeInterval())
	drainer := rxsync.NewDrainer(database, client, probe, rxsync.NewNotifier(), syncconfig.GetBatchSize())
	return &engine{client: client, probe: probe, drainer: drainer}, nil
}

// autoSyncEnabled checks RXSYNC_AUTO_SYNC; auto-sync is on by default.
func autoSyncEnabled() bool {
	if v := os.Getenv("RXSYNC_AUTO_SYNC"); v != "" {
		return v == "1" || v == "true"
	}
	return true
}

// autoSyncAfterMutation runs a quick drain after a command wrote to the
// store. Runs synchronously with a short timeout. Errors are logged, not
// returned: the change is already durable in the outbox.
func autoSyncAfterMutation(database *db.DB) {
	if !autoSyncEnabled() || !syncconfig.IsAuthenticated() {
		return
	}

	e, err := newEngine(database)
	if err != nil {
		slog.Debug("autosync: engine", "err", err)
		return
	}
	e.client.HTTP.Timeout = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if !e.probe.Check(ctx) {
		slog.Debug("autosync: offline, change stays queued")
		return
	}
	res := e.drainer.Drain(ctx)
	slog.Debug("autosync: drained", "processed", res.Processed, "remaining", res.Remaining, "err", res.Err)
}

// warnUnsynced tells the operator how many changes are still queued when a
// long-running command exits.
func warnUnsynced(database *db.DB) {
	var pending int
	err := database.View(context.Background(), func(tx *db.Tx) error {
		var err error
		pending, err = tx.CountPending()
		return err
	})
	if err != nil {
		slog.Debug("count pending on exit", "err", err)
		return
	}
	if pending > 0 {
		output.Warning("%d change(s) not yet synced; they stay queued for the next run", pending)
	}
}
