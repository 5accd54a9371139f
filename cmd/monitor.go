package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/rxsync/internal/config"
	"github.com/marcus/rxsync/internal/logging"
	"github.com/marcus/rxsync/internal/output"
	"github.com/marcus/rxsync/internal/tui/monitor"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard of the outbox and sync activity",
	Long: `Runs the sync engine and shows a live dashboard:
- Sync state: offline, pending, syncing, synced or error
- Outbox: queued changes in send order with failure counts
- History: recent pushes and pulls

Key bindings:
  Tab/Shift+Tab  Switch panels
  1/2            Jump to panel
  j/k            Scroll
  s              Sync now
  r              Force refresh
  ?              Toggle help
  q              Quit`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()
		cfg, err := config.Load(baseDir)
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}

		closer, err := logging.Setup(baseDir, cfg.LogSettings(), logging.Options{})
		if err != nil {
			output.Error("set up logging: %v", err)
			return err
		}
		defer closer.Close()

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

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = 2 * time.Second
		}

		statuses, unsubscribe := e.drainer.Notifier().Subscribe()
		defer unsubscribe()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- runner.Run(ctx) }()

		model := monitor.NewModel(database, statuses, runner.Trigger, interval)
		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running monitor: %w", err)
		}

		cancel()
		err = <-done
		warnUnsynced(database)
		return err
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", 2*time.Second, "Refresh interval")
}
