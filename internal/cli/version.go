package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/pkg/strata"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(strata.FullVersionInfo())
	},
}
