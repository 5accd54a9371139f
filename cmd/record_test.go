package cmd

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/marcus/rxsync/internal/db"
	"github.com/spf13/cobra"
)

func dataCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addDataFlags(cmd.Flags())
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestReadData(t *testing.T) {
	got, err := readData(dataCommand(t, "--data", `{"name":"Aspirin","salePrice":12.5}`))
	if err != nil {
		t.Fatalf("readData: %v", err)
	}
	want := map[string]any{"name": "Aspirin", "salePrice": 12.5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("readData = %v, want %v", got, want)
	}
}

func TestReadData_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drug.json")
	if err := os.WriteFile(path, []byte(`{"name":"Cetirizine"}`), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := readData(dataCommand(t, "-f", path))
	if err != nil {
		t.Fatalf("readData: %v", err)
	}
	if got["name"] != "Cetirizine" {
		t.Errorf("readData = %v", got)
	}
}

func TestReadData_Errors(t *testing.T) {
	tests := map[string][]string{
		"nothing given": nil,
		"both given":    {"-d", `{}`, "-f", "x.json"},
		"not an object": {"-d", `[1,2]`},
		"bad json":      {"-d", `{name:`},
		"missing file":  {"-f", filepath.Join(t.TempDir(), "missing.json")},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := readData(dataCommand(t, args...)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseEntityKey(t *testing.T) {
	entity, key, err := parseEntityKey([]string{"drugBatches", "42"})
	if err != nil || entity != "drugBatches" || key != 42 {
		t.Errorf("parseEntityKey = %q, %d, %v", entity, key, err)
	}

	for _, args := range [][]string{
		{"patients", "1"},
		{"drugs", "abc"},
		{"drugs", "0"},
		{"drugs", "-3"},
	} {
		if _, _, err := parseEntityKey(args); err == nil {
			t.Errorf("parseEntityKey(%v): expected error", args)
		}
	}
}

func TestParseSeq(t *testing.T) {
	if seq, err := parseSeq("17"); err != nil || seq != 17 {
		t.Errorf("parseSeq(17) = %d, %v", seq, err)
	}
	for _, s := range []string{"", "0", "-1", "x"} {
		if _, err := parseSeq(s); err == nil {
			t.Errorf("parseSeq(%q): expected error", s)
		}
	}
}

func TestParseSettingValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{`42`, float64(42)},
		{`true`, true},
		{`"EGP"`, "EGP"},
		{`{"vat":14}`, map[string]any{"vat": float64(14)}},
		{`Pharmacy One`, "Pharmacy One"},
	}
	for _, tt := range tests {
		if got := parseSettingValue(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseSettingValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestRecordJSON(t *testing.T) {
	database := initStore(t)
	key := createRecord(t, database, "drugs", map[string]any{"name": "Omeprazole"})

	var rec map[string]any
	err := database.View(context.Background(), func(tx *db.Tx) error {
		r, err := tx.GetRecord("drugs", key)
		if err != nil {
			return err
		}
		rec = recordJSON(r)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec["id"] != key || rec["entity"] != "drugs" {
		t.Errorf("recordJSON = %v", rec)
	}
	if _, ok := rec["remoteKey"]; ok {
		t.Error("unsynced record should not carry remoteKey")
	}
}
