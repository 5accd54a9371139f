package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/rxsync/internal/dateparse"
	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/output"
	"github.com/spf13/cobra"
)

var (
	pushArrow = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("→") // green
	pullArrow = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Render("←") // cyan
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"tail"},
	Short:   "Show recent sync activity",
	Long: `Show changes pushed to and pulled from the remote store. Use -f to follow
in real-time.`,
	Example: `  rxsync history            # last 20 events
  rxsync history -f         # follow new events
  rxsync history -n 100     # last 100 events
  rxsync history --since 2h # events from the last two hours
  rxsync history -f -n 0    # follow only new events`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")
		sinceStr, _ := cmd.Flags().GetString("since")

		var since time.Time
		if sinceStr != "" {
			d, err := dateparse.ParseDuration(sinceStr)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			since = time.Now().Add(-d)
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var entries []db.SyncHistoryEntry
		var maxID int64
		err = database.View(context.Background(), func(tx *db.Tx) error {
			var err error
			if lines > 0 {
				if entries, err = tx.SyncHistoryTail(lines); err != nil {
					return err
				}
			}
			tail, err := tx.SyncHistoryTail(1)
			if err != nil {
				return err
			}
			if len(tail) > 0 {
				maxID = tail[0].ID
			}
			return nil
		})
		if err != nil {
			output.Error("query sync history: %v", err)
			return err
		}

		entries = filterSince(entries, since)
		if jsonOutput(cmd) && !follow {
			return output.JSON(entries)
		}
		for _, e := range entries {
			fmt.Println(formatHistoryEntry(e))
		}

		if !follow {
			if len(entries) == 0 {
				fmt.Println("No sync activity recorded.")
			}
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				fmt.Println()
				return nil
			case <-ticker.C:
				var fresh []db.SyncHistoryEntry
				err := database.View(ctx, func(tx *db.Tx) error {
					var err error
					fresh, err = tx.SyncHistoryAfter(maxID, 100)
					return err
				})
				if err != nil {
					slog.Debug("history: poll", "err", err)
					continue
				}
				for _, e := range fresh {
					fmt.Println(formatHistoryEntry(e))
					if e.ID > maxID {
						maxID = e.ID
					}
				}
			}
		}
	},
}

func filterSince(entries []db.SyncHistoryEntry, since time.Time) []db.SyncHistoryEntry {
	if since.IsZero() {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

func formatHistoryEntry(e db.SyncHistoryEntry) string {
	arrow := pullArrow
	if e.Direction == db.DirectionPush {
		arrow = pushArrow
	}

	ts := dimStyle.Render(e.Timestamp.Local().Format("15:04:05"))
	line := fmt.Sprintf("%s %s %s %s #%d (%s)", ts, arrow, e.Direction, e.Entity, e.LocalKey, e.Action)
	if e.RemoteKey != 0 {
		line += fmt.Sprintf(" remote:%d", e.RemoteKey)
	}
	if e.Seq != 0 {
		line += fmt.Sprintf(" seq:%d", e.Seq)
	}
	return line
}

func init() {
	historyCmd.Flags().BoolP("follow", "f", false, "Follow new events in real-time")
	historyCmd.Flags().IntP("lines", "n", 20, "Number of initial lines to show")
	historyCmd.Flags().String("since", "", "Only show events newer than this (e.g. 30m, 2h, 7d)")
	rootCmd.AddCommand(historyCmd)
}
