package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/marcus/rxsync/internal/output"
	"github.com/marcus/rxsync/internal/remote"
	"github.com/marcus/rxsync/internal/syncconfig"
	"github.com/marcus/rxsync/internal/translate"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage the API key for the remote store",
	GroupID: "system",
}

// verifyKey makes one authenticated read against the remote. A 401 or 403
// means the key is wrong; an unreachable remote is reported separately so
// the key can still be saved for later.
func verifyKey(ctx context.Context, client *remote.Client) error {
	tables := translate.Tables()
	if len(tables) == 0 {
		return nil
	}
	_, _, err := client.Lookup(ctx, tables[0], syncconfig.GenerateDeviceID())
	return err
}

func isAuthRejection(err error) bool {
	var rej *remote.RejectedError
	return errors.As(err, &rej) && (rej.Status == http.StatusUnauthorized || rej.Status == http.StatusForbidden)
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save an API key for the remote store",
	Long: `Saves the API key (and optionally the server URL) in
~/.config/rxsync/auth.json. The key is checked against the server first.
Without --key the key is read from an interactive prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		serverURL, _ := cmd.Flags().GetString("url")
		if serverURL == "" {
			serverURL = syncconfig.GetServerURL()
		}

		if key == "" {
			if !output.IsTerminal() {
				return errors.New("API key required: pass --key")
			}
			err := huh.NewInput().
				Title("API key for " + serverURL).
				EchoMode(huh.EchoModePassword).
				Value(&key).
				Run()
			if err != nil {
				return err
			}
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return errors.New("API key required")
		}

		deviceID, err := syncconfig.GetDeviceID()
		if err != nil {
			return fmt.Errorf("get device id: %w", err)
		}

		client := remote.New(serverURL, key, deviceID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		switch err := verifyKey(ctx, client); {
		case err == nil:
		case isAuthRejection(err):
			output.Error("server refused the key: %v", err)
			return err
		case remote.IsTransient(err):
			output.Warning("could not reach %s, saving the key unverified", serverURL)
		default:
			output.Warning("key check: %v", err)
		}

		creds := &syncconfig.AuthCredentials{
			APIKey:    key,
			ServerURL: serverURL,
			DeviceID:  deviceID,
			SavedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		if err := syncconfig.SaveAuth(creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}

		output.Success("Logged in to %s", serverURL)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := syncconfig.ClearAuth(); err != nil {
			output.Error("logout: %v", err)
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := syncconfig.LoadAuth()
		if err != nil {
			output.Error("load auth: %v", err)
			return err
		}

		if creds == nil || creds.APIKey == "" {
			if syncconfig.IsAuthenticated() {
				fmt.Println("Using API key from RXSYNC_API_KEY.")
				fmt.Printf("Server: %s\n", syncconfig.GetServerURL())
				return nil
			}
			fmt.Println("Not logged in.")
			return nil
		}

		fmt.Printf("Server: %s\n", creds.ServerURL)
		fmt.Printf("Key:    %s\n", maskKey(creds.APIKey))
		fmt.Printf("Device: %s\n", creds.DeviceID)
		if creds.SavedAt != "" {
			fmt.Printf("Saved:  %s\n", creds.SavedAt)
		}
		return nil
	},
}

func maskKey(key string) string {
	if len(key) > 12 {
		return key[:12] + "..."
	}
	return key
}

func init() {
	authLoginCmd.Flags().String("key", "", "API key (prompted for when omitted)")
	authLoginCmd.Flags().String("url", "", "Server URL (default: current sync.url)")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
