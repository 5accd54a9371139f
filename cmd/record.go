package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
	"github.com/marcus/rxsync/internal/output"
	"github.com/marcus/rxsync/internal/suggest"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var recordCmd = &cobra.Command{
	Use:     "record",
	Aliases: []string{"rec"},
	Short:   "Create, change and inspect local records",
	Long: `Records live in the local store. Every create, update and delete is
queued for the remote store in the same transaction.

Entities: ` + strings.Join(models.SyncedEntities, ", "),
	GroupID: "core",
}

var recordCreateCmd = &cobra.Command{
	Use:   "create <entity>",
	Short: "Create a record",
	Example: `  rxsync record create drugs --data '{"name":"Paracetamol 500mg","salePrice":15}'
  rxsync record create saleInvoices --file invoice.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := parseEntity(args[0])
		if err != nil {
			return err
		}
		data, err := readData(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var key int64
		err = database.WithTx(context.Background(), func(tx *db.Tx) error {
			var err error
			key, err = tx.CreateRecord(entity, data, db.OriginLocal)
			return err
		})
		if err != nil {
			output.Error("create %s: %v", entity, err)
			return err
		}

		if jsonOutput(cmd) {
			output.JSON(map[string]any{"entity": entity, "id": key})
		} else {
			output.Success("CREATED %s #%d", entity, key)
		}
		autoSyncAfterMutation(database)
		return nil
	},
}

var recordUpdateCmd = &cobra.Command{
	Use:   "update <entity> <id>",
	Short: "Change fields of a record",
	Long: `Only the fields given are changed. Fields whose value is unchanged are
left out of the queued change. An update that changes nothing is still queued
and is dropped at sync time without contacting the server.`,
	Example: `  rxsync record update drugs 3 --data '{"totalStock":40}'`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, key, err := parseEntityKey(args)
		if err != nil {
			return err
		}
		data, err := readData(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		err = database.WithTx(context.Background(), func(tx *db.Tx) error {
			return tx.UpdateRecord(entity, key, data, db.OriginLocal)
		})
		if err != nil {
			reportRecordError(cmd, "update", entity, key, err)
			return err
		}

		output.Success("UPDATED %s #%d", entity, key)
		autoSyncAfterMutation(database)
		return nil
	},
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <entity> <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, key, err := parseEntityKey(args)
		if err != nil {
			return err
		}

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			ok, err := confirm(fmt.Sprintf("Delete %s #%d?", entity, key), "The delete is queued for the remote store too.")
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
			return tx.DeleteRecord(entity, key, db.OriginLocal)
		})
		if err != nil {
			reportRecordError(cmd, "delete", entity, key, err)
			return err
		}

		output.Success("DELETED %s #%d", entity, key)
		autoSyncAfterMutation(database)
		return nil
	},
}

var recordGetCmd = &cobra.Command{
	Use:     "get <entity> <id>",
	Aliases: []string{"show"},
	Short:   "Show one record",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, key, err := parseEntityKey(args)
		if err != nil {
			return err
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var rec *db.Record
		err = database.View(context.Background(), func(tx *db.Tx) error {
			var err error
			rec, err = tx.GetRecord(entity, key)
			return err
		})
		if err != nil {
			reportRecordError(cmd, "get", entity, key, err)
			return err
		}

		if jsonOutput(cmd) {
			return output.JSON(recordJSON(rec))
		}
		fmt.Print(output.FormatRecordLong(rec.Entity, rec.LocalKey, rec.RemoteKey, rec.ClientID, rec.Data, parseStoreTime(rec.UpdatedAt)))
		return nil
	},
}

var recordListCmd = &cobra.Command{
	Use:     "list <entity>",
	Aliases: []string{"ls"},
	Short:   "List records of an entity",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := parseEntity(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var recs []db.Record
		err = database.View(context.Background(), func(tx *db.Tx) error {
			var err error
			recs, err = tx.ListRecords(entity, limit)
			return err
		})
		if err != nil {
			output.Error("list %s: %v", entity, err)
			return err
		}

		if jsonOutput(cmd) {
			out := make([]map[string]any, 0, len(recs))
			for i := range recs {
				out = append(out, recordJSON(&recs[i]))
			}
			return output.JSON(out)
		}
		if len(recs) == 0 {
			fmt.Printf("No %s\n", entity)
			return nil
		}
		width := output.TerminalWidth(0)
		for i := range recs {
			r := &recs[i]
			fmt.Println(output.FormatRecordShort(r.Entity, r.LocalKey, r.RemoteKey, r.Data, width))
		}
		return nil
	},
}

func parseEntity(name string) (string, error) {
	if !models.IsSyncedEntity(name) {
		output.Error("unknown entity %q", name)
		if hint := suggest.Hint(name, models.SyncedEntities); hint != "" {
			fmt.Println(hint)
		} else {
			fmt.Println("Entities:", strings.Join(models.SyncedEntities, ", "))
		}
		return "", fmt.Errorf("unknown entity %q", name)
	}
	return name, nil
}

func parseEntityKey(args []string) (string, int64, error) {
	entity, err := parseEntity(args[0])
	if err != nil {
		return "", 0, err
	}
	key, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || key <= 0 {
		output.Error("invalid id %q", args[1])
		return "", 0, fmt.Errorf("invalid id %q", args[1])
	}
	return entity, key, nil
}

// readData reads the record fields from --data or --file ("-" is stdin).
func readData(cmd *cobra.Command) (map[string]any, error) {
	raw, _ := cmd.Flags().GetString("data")
	file, _ := cmd.Flags().GetString("file")

	switch {
	case raw != "" && file != "":
		return nil, errors.New("use either --data or --file, not both")
	case file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = string(b)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = string(b)
	case raw == "":
		return nil, errors.New("record fields required: pass --data or --file")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("record fields must be a JSON object: %w", err)
	}
	return data, nil
}

func reportRecordError(cmd *cobra.Command, op, entity string, key int64, err error) {
	if errors.Is(err, db.ErrNotFound) {
		if jsonOutput(cmd) {
			output.JSONError(output.ErrCodeNotFound, err.Error())
			return
		}
		output.Error("%s #%d not found", entity, key)
		return
	}
	output.Error("%s %s #%d: %v", op, entity, key, err)
}

func recordJSON(r *db.Record) map[string]any {
	out := map[string]any{
		"entity":    r.Entity,
		"id":        r.LocalKey,
		"clientId":  r.ClientID,
		"data":      r.Data,
		"createdAt": r.CreatedAt,
		"updatedAt": r.UpdatedAt,
	}
	if r.RemoteKey != nil {
		out["remoteKey"] = *r.RemoteKey
	}
	return out
}

func parseStoreTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func addDataFlags(fs *pflag.FlagSet) {
	fs.StringP("data", "d", "", "Record fields as a JSON object")
	fs.StringP("file", "f", "", "Read record fields from a JSON file (- for stdin)")
}

// confirm asks a yes/no question on the terminal. Without a terminal it
// refuses rather than guessing.
func confirm(title, description string) (bool, error) {
	if !output.IsTerminal() {
		return false, errors.New("confirmation needed: re-run with --yes")
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func init() {
	addDataFlags(recordCreateCmd.Flags())
	addDataFlags(recordUpdateCmd.Flags())
	recordDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	recordListCmd.Flags().IntP("limit", "n", 50, "Max records to show")

	recordCmd.AddCommand(recordCreateCmd, recordUpdateCmd, recordDeleteCmd, recordGetCmd, recordListCmd)
	rootCmd.AddCommand(recordCmd)
}
