package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/history"
)

var statusLimit uint64

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show convergence state and recent runs",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Uint64Var(&statusLimit, "limit", 10, "number of recorded runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	units, err := loadUnits("")
	if err != nil {
		return err
	}

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := newEngine(db)
	out := cmd.OutOrStdout()

	converged, pending := 0, 0
	for _, unit := range units {
		plan, err := engine.DryRun(ctx, unit)
		if err != nil {
			return err
		}
		applies, _ := plan.Counts()
		if applies == 0 {
			converged++
		} else {
			pending++
			renderPlan(out, plan, unit.Description, verbose)
		}
	}

	bold := color.New(color.Bold)
	bold.Fprintf(out, "%d units: %d converged, %d pending\n", len(units), converged, pending)

	// status is read-only: report recorded runs when the tracking table
	// exists, never create it
	store := history.NewStore(db)
	if strataConfig != nil {
		if !strataConfig.History.Enabled {
			return nil
		}
		store.WithTable(strataConfig.History.Table)
	}

	exists, err := store.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintln(out, "No run history recorded.")
		return nil
	}

	runs, err := store.Runs(ctx, statusLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	bold.Fprintln(out, "Recent runs:")
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	for _, run := range runs {
		mark := green.Sprint("✓")
		if !run.Success {
			mark = red.Sprint("✗")
		}
		fmt.Fprintf(out, "  %s unit %-4d %-30s %s\n",
			mark, run.UnitID, run.Description, run.RanAt.Format(time.RFC3339))
	}
	return nil
}
