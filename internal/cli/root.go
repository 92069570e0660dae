package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/pkg/strata"
)

// Global configuration variables
var (
	configFile   string
	strataConfig *StrataConfig
	databaseURL  string
	unitsDir     string
	debug        bool
	verbose      bool
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "strata",
		Short: "Strata - Convergent Schema Migration Orchestrator",
		Long: `Strata drives a live Postgres schema toward a declared target state.

Each migration unit is planned against the current schema, every
operation classified as skip, apply, or destructive, and the remaining
work executed in a single transaction. Re-running a unit that already
converged performs zero work.`,
		Version: strata.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()

			if debug {
				logger.SetLevel(logger.LevelDebug)
			}

			var err error
			strataConfig, err = LoadStrataConfig(configFile)
			if err != nil {
				if verbose {
					cmd.Printf("Warning: failed to load config file: %v\n", err)
				}
			}

			if strataConfig != nil {
				if databaseURL == "" && strataConfig.Database.URL != "" {
					databaseURL = strataConfig.Database.URL
				}
				if unitsDir == "" {
					unitsDir = strataConfig.Units.Directory
				}
			}
			if unitsDir == "" {
				unitsDir = "./migrations"
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: strata.yaml)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "url", "", "database connection URL")
	rootCmd.PersistentFlags().StringVar(&unitsDir, "dir", "", "migration units directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose output")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}
