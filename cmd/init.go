package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/output"
	"github.com/spf13/cobra"
)

const storeIgnoreLine = ".rxsync/"

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Create a local pharmacy store in this directory",
	Long:    `Creates the .rxsync directory with the SQLite store and an empty outbox.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}

		if _, err := os.Stat(filepath.Join(dir, ".rxsync")); err == nil {
			output.Warning(".rxsync/ already exists")
			return nil
		}

		database, err := db.Initialize(dir)
		if err != nil {
			output.Error("failed to initialize store: %v", err)
			return err
		}
		defer database.Close()

		fmt.Println("INITIALIZED .rxsync/")

		if isGitWorkTree(dir) {
			addToGitignore(filepath.Join(dir, ".gitignore"))
		}
		return nil
	},
}

func isGitWorkTree(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

func addToGitignore(path string) {
	content, _ := os.ReadFile(path)
	contentStr := string(content)

	for _, line := range strings.Split(contentStr, "\n") {
		if strings.TrimSpace(line) == storeIgnoreLine {
			return
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	if len(contentStr) > 0 && !strings.HasSuffix(contentStr, "\n") {
		f.WriteString("\n")
	}

	f.WriteString(storeIgnoreLine + "\n")
	fmt.Println("Added .rxsync/ to .gitignore")
}

func init() {
	rootCmd.AddCommand(initCmd)
}
