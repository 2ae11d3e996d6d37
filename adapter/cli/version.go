package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/maximegiguere1one/chiroflow/adapter/cli.Version=...".
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// BuildInfo fills the commit and build time from the embedded VCS stamp
// when the linker flags were not given.
func BuildInfo() (version, commit, built string) {
	version, commit, built = Version, Commit, BuildDate
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "":
				commit = s.Value
			case s.Key == "vcs.time" && built == "":
				built = s.Value
			}
		}
	}
	if commit == "" {
		commit = "none"
	}
	if built == "" {
		built = "unknown"
	}
	return version, commit, built
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		version, commit, built := BuildInfo()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "chiroflow %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", built)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
