package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/asimaranov/telestory-backend/internal/fleet"
)

// versionCmd prints version and build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fleetd %s (%s %s/%s)\n", fleet.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
