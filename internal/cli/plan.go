package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var (
	planRange   string
	planShowSQL bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview classified migration plans",
	Long: `Plan every migration unit against the live schema without executing
anything. Each operation is shown with its classification: skip means
the schema already converged, apply means safe work remains, and
destructive marks a type change with no value-preserving conversion.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planRange, "units", "", "unit id or range (e.g. 3, 2..5, 4..)")
	planCmd.Flags().BoolVar(&planShowSQL, "sql", false, "show the SQL each step would execute")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	units, err := loadUnits(planRange)
	if err != nil {
		return err
	}

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := newEngine(db)
	for _, unit := range units {
		plan, err := engine.DryRun(ctx, unit)
		if err != nil {
			return err
		}
		renderPlan(cmd.OutOrStdout(), plan, unit.Description, planShowSQL || verbose)
	}
	return nil
}
