package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/output"
	"github.com/spf13/cobra"
)

var settingCmd = &cobra.Command{
	Use:   "setting",
	Short: "Read and write pharmacy settings",
	Long: `Pharmacy settings are synced key/value records (pharmacy name, tax rate,
receipt footer, ...). Values are JSON; a value that is not valid JSON is
stored as a string.`,
	GroupID: "core",
}

var settingGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a setting value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var raw json.RawMessage
		err = database.View(context.Background(), func(tx *db.Tx) error {
			var err error
			raw, err = tx.GetSetting(args[0])
			return err
		})
		if errors.Is(err, db.ErrNotFound) {
			output.Error("setting %q not set", args[0])
			return err
		}
		if err != nil {
			output.Error("%v", err)
			return err
		}

		fmt.Println(string(raw))
		return nil
	},
}

var settingSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Set a setting value",
	Example: `  rxsync setting set pharmacyName '"Central Pharmacy"'
  rxsync setting set taxRate 0.15`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := parseSettingValue(args[1])

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		err = database.WithTx(context.Background(), func(tx *db.Tx) error {
			_, err := tx.PutSetting(key, value, db.OriginLocal)
			return err
		})
		if err != nil {
			output.Error("set %s: %v", key, err)
			return err
		}

		output.Success("set %s = %s", key, args[1])
		autoSyncAfterMutation(database)
		return nil
	},
}

// parseSettingValue decodes s as JSON, falling back to the literal string.
func parseSettingValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func init() {
	settingCmd.AddCommand(settingGetCmd, settingSetCmd)
	rootCmd.AddCommand(settingCmd)
}
