package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus/rxsync/internal/output"
	"github.com/marcus/rxsync/internal/syncconfig"
	"github.com/spf13/cobra"
)

const syncTimeout = 2 * time.Minute

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued changes to the remote store now",
	Long: `Drains the outbox once: entries are sent to the remote store in the order
they were made and removed as the remote acknowledges them. Stops at the
first entry that cannot be sent yet; it is retried on the next sync.

For continuous sync run 'rxsync daemon'.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !syncconfig.IsAuthenticated() {
			output.Warning("no API key configured, run 'rxsync auth login'")
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		e, err := newEngine(database)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		e.probe.Check(ctx)
		res := e.drainer.Drain(ctx)
		status := e.drainer.Notifier().Current()

		if jsonOutput(cmd) {
			return output.JSON(map[string]any{
				"status":      status,
				"processed":   res.Processed,
				"quarantined": res.Quarantined,
				"remaining":   res.Remaining,
				"deferred":    res.Deferred,
			})
		}

		fmt.Println(output.FormatStatus(status))
		if res.Processed > 0 {
			output.Success("pushed %d change(s)", res.Processed)
		}
		if res.Quarantined > 0 {
			output.Warning("%d malformed entr(ies) quarantined, see 'rxsync queue quarantine'", res.Quarantined)
		}
		if res.Deferred {
			output.Info("stopped at an entry that depends on a record not synced yet")
		}
		if res.Err != nil && res.FailedSeq != 0 {
			return fmt.Errorf("sync stopped at seq %d: %w", res.FailedSeq, res.Err)
		}
		if res.Err != nil {
			return fmt.Errorf("sync: %w", res.Err)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Duration("timeout", syncTimeout, "Give up after this long")
	rootCmd.AddCommand(syncCmd)
}
