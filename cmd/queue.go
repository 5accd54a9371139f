package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
	"github.com/marcus/rxsync/internal/output"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Aliases: []string{"outbox"},
	Short:   "Inspect and repair the outbox of queued changes",
	GroupID: "sync",
}

var queueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List queued changes in send order",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var (
			entries  []models.OutboxEntry
			failures map[int64]models.EntryFailure
			total    int
		)
		err = database.View(context.Background(), func(tx *db.Tx) error {
			var err error
			if total, err = tx.CountPending(); err != nil {
				return err
			}
			rows, err := tx.PendingEntries(limit)
			if err != nil {
				return err
			}
			for _, r := range rows {
				e, _ := r.Decode()
				entries = append(entries, e)
			}
			list, err := tx.ListFailures()
			if err != nil {
				return err
			}
			failures = make(map[int64]models.EntryFailure, len(list))
			for _, f := range list {
				failures[f.Seq] = f
			}
			return nil
		})
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOutput(cmd) {
			out := make([]map[string]any, 0, len(entries))
			for _, e := range entries {
				item := map[string]any{
					"seq": e.Seq, "entity": e.Entity, "action": e.Action,
					"localKey": e.LocalKey, "enqueuedAt": e.EnqueuedAt,
				}
				if f, ok := failures[e.Seq]; ok {
					item["attempts"] = f.Attempts
					item["lastError"] = f.LastError
				}
				out = append(out, item)
			}
			return output.JSON(out)
		}

		if total == 0 {
			output.Success("outbox empty, all changes synced")
			return nil
		}
		width := output.TerminalWidth(0)
		for _, e := range entries {
			f := failures[e.Seq]
			fmt.Println(output.FormatEntry(e, f.Attempts, f.LastError, width))
		}
		if total > len(entries) {
			fmt.Printf("... and %d more\n", total-len(entries))
		}
		return nil
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show <seq>",
	Short: "Show one queued change with its payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := parseSeq(args[0])
		if err != nil {
			return err
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var (
			row     db.OutboxRow
			failure *models.EntryFailure
		)
		err = database.View(context.Background(), func(tx *db.Tx) error {
			var err error
			if row, err = tx.GetEntry(seq); err != nil {
				return err
			}
			failures, err := tx.ListFailures()
			if err != nil {
				return err
			}
			for i := range failures {
				if failures[i].Seq == seq {
					failure = &failures[i]
				}
			}
			return nil
		})
		if errors.Is(err, db.ErrNotFound) {
			output.Error("seq %d is not queued", seq)
			return err
		}
		if err != nil {
			output.Error("%v", err)
			return err
		}

		entry, decodeErr := row.Decode()
		fmt.Println(output.FormatEntry(entry, 0, "", 0))
		if decodeErr != nil {
			output.Warning("%v", decodeErr)
		}
		if failure != nil {
			fmt.Printf("Failed %d time(s), last %s: %s\n", failure.Attempts, output.FormatTimeAgo(failure.FailedAt), failure.LastError)
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, []byte(row.RawPayload), "", "  "); err != nil {
			fmt.Println(row.RawPayload)
			return nil
		}
		fmt.Println(pretty.String())
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Clear failure counts and sync again",
	Long: `Drops the failure bookkeeping of stuck entries and runs one sync. Use it
after fixing whatever made the remote reject the head entry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		err = database.WithTx(context.Background(), func(tx *db.Tx) error {
			return tx.ClearFailures()
		})
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("failure counts cleared")

		return syncCmd.RunE(cmd, nil)
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard <seq>",
	Short: "Move a stuck change to quarantine so the queue can move on",
	Long: `Discards one queued change. The change is kept in quarantine for
inspection but is never sent. The local record is not touched, so local and
remote data may differ afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := parseSeq(args[0])
		if err != nil {
			return err
		}

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			ok, err := confirm(fmt.Sprintf("Discard queued change %d?", seq), "It will never be sent to the remote store.")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		err = database.WithTx(context.Background(), func(tx *db.Tx) error {
			return tx.DiscardEntry(seq)
		})
		if errors.Is(err, db.ErrNotFound) {
			output.Error("seq %d is not queued", seq)
			return err
		}
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("discarded seq %d", seq)
		return nil
	},
}

var queueResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Quarantine every queued change",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			ok, err := confirm("Discard ALL queued changes?", "None of them will reach the remote store.")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var moved int
		err = database.WithTx(context.Background(), func(tx *db.Tx) error {
			var err error
			moved, err = tx.ResetOutbox()
			return err
		})
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("moved %d change(s) to quarantine", moved)
		return nil
	},
}

var queueQuarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "List changes that were discarded or could not be read",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var entries []models.QuarantinedEntry
		err = database.View(context.Background(), func(tx *db.Tx) error {
			var err error
			entries, err = tx.ListQuarantine(limit)
			return err
		})
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOutput(cmd) {
			return output.JSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("Quarantine is empty")
			return nil
		}
		for _, q := range entries {
			fmt.Printf("%6d  %-6s %-22s %s  %s\n", q.Seq, q.Action, q.Entity, output.FormatTimeAgo(q.QuarantinedAt), q.Reason)
		}
		return nil
	},
}

func parseSeq(s string) (int64, error) {
	seq, err := strconv.ParseInt(s, 10, 64)
	if err != nil || seq <= 0 {
		output.Error("invalid seq %q", s)
		return 0, fmt.Errorf("invalid seq %q", s)
	}
	return seq, nil
}

func init() {
	queueListCmd.Flags().IntP("limit", "n", 50, "Max entries to show")
	queueQuarantineCmd.Flags().IntP("limit", "n", 50, "Max entries to show")
	queueDiscardCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	queueResetCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	queueRetryCmd.Flags().Duration("timeout", syncTimeout, "Give up after this long")

	queueCmd.AddCommand(queueListCmd, queueShowCmd, queueRetryCmd, queueDiscardCmd, queueResetCmd, queueQuarantineCmd)
	rootCmd.AddCommand(queueCmd)
}
