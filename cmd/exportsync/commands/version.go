package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/exportsync/display"
	"github.com/teranos/exportsync/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show exportsync version information",
	Long:  `Display version, build time, commit hash, and platform information for the exportsync binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()

		if display.ShouldOutputJSON(cmd) {
			return display.WriteJSON(out(cmd), info)
		}
		fmt.Fprintln(out(cmd), info.String())
		fmt.Fprintf(out(cmd), "Platform: %s\n", info.Platform)
		fmt.Fprintf(out(cmd), "Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
