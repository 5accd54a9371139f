package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/rxsync/internal/config"
	"github.com/marcus/rxsync/internal/output"
	"github.com/marcus/rxsync/internal/suggest"
	"github.com/marcus/rxsync/internal/syncconfig"
	"github.com/spf13/cobra"
)

// userConfigKeys are stored in ~/.config/rxsync/config.json; every other key
// belongs to the store's .rxsync/config.json.
var userConfigKeys = []string{
	"sync.url",
	"sync.drain.interval",
	"sync.drain.probe_interval",
	"sync.drain.batch_size",
	"sync.drain.subscribe",
	"sync.drain.watch",
}

func isUserConfigKey(key string) bool {
	return slices.Contains(userConfigKeys, key)
}

func allConfigKeys() []string {
	return append(slices.Clone(userConfigKeys), config.Keys()...)
}

func parseBool(val string) (bool, error) {
	switch strings.ToLower(val) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q (use true/false/1/0)", val)
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

// setUserConfig applies key=val to cfg. An empty value restores the default.
func setUserConfig(cfg *syncconfig.Config, key, val string) error {
	d := &cfg.Sync.Drain
	switch key {
	case "sync.url":
		cfg.Sync.URL = val
	case "sync.drain.interval", "sync.drain.probe_interval":
		if val != "" {
			if dur, err := time.ParseDuration(val); err != nil || dur <= 0 {
				return fmt.Errorf("invalid duration %q", val)
			}
		}
		if key == "sync.drain.interval" {
			d.Interval = val
		} else {
			d.ProbeInterval = val
		}
	case "sync.drain.batch_size":
		if val == "" {
			d.BatchSize = nil
			return nil
		}
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid batch size %q", val)
		}
		d.BatchSize = intPtr(n)
	case "sync.drain.subscribe", "sync.drain.watch":
		var p *bool
		if val != "" {
			b, err := parseBool(val)
			if err != nil {
				return err
			}
			p = boolPtr(b)
		}
		if key == "sync.drain.subscribe" {
			d.Subscribe = p
		} else {
			d.Watch = p
		}
	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownKey, key)
	}
	return nil
}

// getUserConfig returns the effective value of key, env overrides included.
func getUserConfig(key string) string {
	switch key {
	case "sync.url":
		return syncconfig.GetServerURL()
	case "sync.drain.interval":
		return syncconfig.GetDrainInterval().String()
	case "sync.drain.probe_interval":
		return syncconfig.GetProbeInterval().String()
	case "sync.drain.batch_size":
		return strconv.Itoa(syncconfig.GetBatchSize())
	case "sync.drain.subscribe":
		return strconv.FormatBool(syncconfig.GetSubscribeEnabled())
	case "sync.drain.watch":
		return strconv.FormatBool(syncconfig.GetWatchEnabled())
	}
	return ""
}

func getConfigValue(key string) (string, error) {
	if isUserConfigKey(key) {
		return getUserConfig(key), nil
	}
	return config.Get(getBaseDir(), key)
}

func reportUnknownKey(key string) error {
	output.Error("unknown config key: %s", key)
	if hint := suggest.Hint(key, allConfigKeys()); hint != "" {
		fmt.Println(hint)
	}
	fmt.Println("Valid keys:", strings.Join(allConfigKeys(), ", "))
	return fmt.Errorf("unknown config key: %s", key)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage rxsync configuration",
	Long: `Keys starting with sync. are per-user and live in ~/.config/rxsync.
All other keys belong to the store in the current directory.`,
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value (empty value restores the default)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]

		if isUserConfigKey(key) {
			cfg, err := syncconfig.LoadConfig()
			if err != nil {
				output.Error("load config: %v", err)
				return err
			}
			if err := setUserConfig(cfg, key, val); err != nil {
				output.Error("%v", err)
				return err
			}
			if err := syncconfig.SaveConfig(cfg); err != nil {
				output.Error("save config: %v", err)
				return err
			}
		} else {
			err := config.Set(getBaseDir(), key, val)
			if errors.Is(err, config.ErrUnknownKey) {
				return reportUnknownKey(key)
			}
			if err != nil {
				output.Error("%v", err)
				return err
			}
		}

		output.Success("set %s = %s", key, val)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := getConfigValue(args[0])
		if errors.Is(err, config.ErrUnknownKey) {
			return reportUnknownKey(args[0])
		}
		if err != nil {
			output.Error("%v", err)
			return err
		}
		fmt.Println(val)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all effective config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		values := make(map[string]string)
		for _, key := range allConfigKeys() {
			val, err := getConfigValue(key)
			if err != nil {
				output.Error("%s: %v", key, err)
				return err
			}
			values[key] = val
		}

		if jsonOutput(cmd) {
			return output.JSON(values)
		}
		for _, key := range allConfigKeys() {
			fmt.Printf("%-26s %s\n", key, values[key])
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
