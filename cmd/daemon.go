package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcus/rxsync/internal/config"
	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/logging"
	"github.com/marcus/rxsync/internal/output"
	rxsync "github.com/marcus/rxsync/internal/sync"
	"github.com/marcus/rxsync/internal/syncconfig"
	"github.com/spf13/cobra"
)

// newRunner wires a runner around e using the user-level drain settings and
// the store's watched tables.
func newRunner(database *db.DB, e *engine, cfg *config.Config) *rxsync.Runner {
	rc := rxsync.RunnerConfig{
		Interval: syncconfig.GetDrainInterval(),
		Watch:    syncconfig.GetWatchEnabled(),
	}
	if syncconfig.GetSubscribeEnabled() {
		rc.Subscriber = e.client
		rc.Tables = cfg.WatchedTables()
	}
	return rxsync.NewRunner(database, e.drainer, e.probe, rc)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync engine in the foreground until interrupted",
	Long: `Drains the outbox on a timer, whenever connectivity returns and whenever
another process queues a change. With subscribe enabled it also applies the
remote change feed for the configured tables.

Logs go to .rxsync/logs/sync.log; --verbose mirrors them to stderr.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()
		cfg, err := config.Load(baseDir)
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}

		level, _ := cmd.Flags().GetString("log-level")
		verbose, _ := cmd.Flags().GetBool("verbose")
		closer, err := logging.Setup(baseDir, cfg.LogSettings(), logging.Options{Level: level, Stderr: verbose})
		if err != nil {
			output.Error("set up logging: %v", err)
			return err
		}
		defer closer.Close()

		if !syncconfig.IsAuthenticated() {
			output.Warning("no API key configured: run 'rxsync auth login'")
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
		runner := newRunner(database, e, cfg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		statuses, unsubscribe := e.drainer.Notifier().Subscribe()
		defer unsubscribe()
		go func() {
			for s := range statuses {
				slog.Info("sync status", "state", s.State, "pending", s.Pending, "remaining", s.Remaining, "err", s.LastError)
				if !verbose {
					fmt.Println(output.FormatStatus(s))
				}
			}
		}()

		slog.Info("daemon: started", "server", syncconfig.GetServerURL(), "store", database.Path())
		output.Info("syncing %s with %s (Ctrl+C to stop)", baseDir, syncconfig.GetServerURL())
		if err := runner.Run(ctx); err != nil {
			slog.Error("daemon: stopped", "err", err)
			output.Error("%v", err)
			return err
		}
		slog.Info("daemon: stopped")
		warnUnsynced(database)
		return nil
	},
}

func init() {
	daemonCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	daemonCmd.Flags().BoolP("verbose", "v", false, "Mirror log lines to stderr")
	rootCmd.AddCommand(daemonCmd)
}
