package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = ""
)

// SetVersion records the build information printed by the version command.
func SetVersion(v, built string) {
	version = v
	buildTime = built
	RootCmd.Version = v
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dfcov version %s\n", version)
		if buildTime != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", buildTime)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	RootCmd.SetVersionTemplate(`dfcov version {{.Version}}
`)
	RootCmd.AddCommand(versionCmd)
}
