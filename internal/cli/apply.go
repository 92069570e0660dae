package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/history"
	"github.com/strata-db/strata/internal/pgconn"
)

var (
	applyRange       string
	allowDestructive bool
	createIfMissing  bool
	applyTimeout     time.Duration
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Execute migration units against the database",
	Long: `Apply every pending migration unit in id order. Each unit runs in its
own transaction; a failing unit rolls back completely and stops the run.
Units whose schema already converged perform no database work.

A unit containing destructive steps aborts before touching the database
unless the unit declares destructive_allowed or --allow-destructive is
passed.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyRange, "units", "", "unit id or range (e.g. 3, 2..5, 4..)")
	applyCmd.Flags().BoolVar(&allowDestructive, "allow-destructive", false, "authorize destructive type changes")
	applyCmd.Flags().BoolVar(&createIfMissing, "create-if-not-exists", false, "create the database if it does not exist")
	applyCmd.Flags().DurationVar(&applyTimeout, "timeout", 10*time.Minute, "overall execution timeout")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()

	units, err := loadUnits(applyRange)
	if err != nil {
		return err
	}

	if createIfMissing {
		dsn, err := resolveDatabaseURL()
		if err != nil {
			return err
		}
		if err := pgconn.EnsureDatabaseExists(ctx, dsn); err != nil {
			return err
		}
	}

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var store *history.Store
	if strataConfig == nil || strataConfig.History.Enabled {
		store = history.NewStore(db)
		if strataConfig != nil {
			store.WithTable(strataConfig.History.Table)
		}
		if err := store.EnsureTable(ctx); err != nil {
			return err
		}
	}

	engine := newEngine(db)
	results, runErr := engine.ApplyAll(ctx, units, allowDestructive)

	for _, res := range results {
		renderResult(cmd.OutOrStdout(), res)
		if store != nil {
			if err := store.Record(ctx, res); err != nil {
				cmd.PrintErrf("Warning: %v\n", err)
			}
		}
	}

	return runErr
}
