package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/marcus/rxsync/internal/api"
	"github.com/marcus/rxsync/internal/serverdb"
)

func runKeys(args []string) {
	if len(args) == 0 {
		printKeysUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "create":
		runKeysCreate(args[1:])
	case "list":
		runKeysList(args[1:])
	case "revoke":
		runKeysRevoke(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown keys command: %s\n", args[0])
		printKeysUsage()
		os.Exit(1)
	}
}

func printKeysUsage() {
	fmt.Fprintln(os.Stderr, `Usage: rxsync-server keys <command> [flags]

Commands:
  create  Issue a bearer key for a pharmacy device
  list    List device keys
  revoke  Revoke a device key`)
}

const dbFlagHelp = "path to the server database (default: from RXSYNC_SERVER_DB_PATH or ./data/rxsync.db)"

func openDB(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		dbPath = api.LoadConfig().ServerDBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runKeysCreate(args []string) {
	fs := flag.NewFlagSet("keys create", flag.ExitOnError)
	name := fs.String("device", "", "device name (e.g. front-counter)")
	ttl := fs.Duration("ttl", 0, "key lifetime (e.g. 2160h); 0 never expires")
	dbPath := fs.String("db", "", dbFlagHelp)
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --device is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	var expiresAt *time.Time
	if *ttl > 0 {
		t := time.Now().UTC().Add(*ttl)
		expiresAt = &t
	}

	plaintext, dk, err := store.CreateDeviceKey(*name, expiresAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created device key %s\n", dk.ID)
	fmt.Printf("  device: %s\n", dk.DeviceName)
	if dk.ExpiresAt != nil {
		fmt.Printf("  expires: %s\n", dk.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Printf("  key:    %s\n", plaintext)
	fmt.Println("\nSave this key now -- it will not be shown again.")
}

func runKeysList(args []string) {
	fs := flag.NewFlagSet("keys list", flag.ExitOnError)
	dbPath := fs.String("db", "", dbFlagHelp)
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	keys, err := store.ListDeviceKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(keys) == 0 {
		fmt.Println("no device keys")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEVICE\tPREFIX\tLAST USED\tEXPIRES")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\t%s…\t%s\t%s\n", k.ID, k.DeviceName, k.KeyPrefix, fmtTime(k.LastUsedAt), fmtTime(k.ExpiresAt))
	}
	tw.Flush()
}

func runKeysRevoke(args []string) {
	fs := flag.NewFlagSet("keys revoke", flag.ExitOnError)
	id := fs.String("id", "", "device key id (dk_...)")
	dbPath := fs.String("db", "", dbFlagHelp)
	fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "error: --id is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	if err := store.RevokeDeviceKey(*id); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("revoked %s\n", *id)
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
