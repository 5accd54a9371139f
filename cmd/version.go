package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// resolveVersion falls back to module and VCS build info when no release
// version was injected. A local build reports e.g. "devel+3f9a1c2b7d4e (dirty)".
func resolveVersion(injected string, info *debug.BuildInfo) string {
	if injected != "" && injected != "dev" {
		return injected
	}
	if info == nil {
		return "dev"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	rev := settings["vcs.revision"]
	if rev == "" {
		return "dev"
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	v := "devel+" + rev
	if settings["vcs.modified"] == "true" {
		v += " (dirty)"
	}
	return v
}

func currentVersion() string {
	info, _ := debug.ReadBuildInfo()
	return resolveVersion(version, info)
}

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := currentVersion()
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Println(v)
			return nil
		}
		fmt.Printf("rxsync version %s (%s, %s/%s)\n", v, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "Print only the version")
	rootCmd.AddCommand(versionCmd)
}
