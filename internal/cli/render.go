package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/strata-db/strata/internal/migrate"
)

func renderPlan(w io.Writer, plan *migrate.Plan, description string, showSQL bool) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	faint := color.New(color.Faint)

	bold.Fprintf(w, "Unit %d: %s\n", plan.UnitID, description)

	var destructives int
	for _, step := range plan.Steps {
		var tag string
		switch step.Class {
		case migrate.Skip:
			tag = green.Sprint("skip       ")
		case migrate.Apply:
			tag = yellow.Sprint("apply      ")
		case migrate.Destructive:
			tag = red.Sprint("destructive")
			destructives++
		}
		fmt.Fprintf(w, "  %s  %s\n", tag, step.Op.Describe())
		if step.Rationale != "" {
			faint.Fprintf(w, "               %s\n", step.Rationale)
		}
		if showSQL {
			for _, stmt := range step.Statements {
				faint.Fprintf(w, "               %s\n", stmt.SQL)
			}
		}
	}

	applies, skips := plan.Counts()
	fmt.Fprintf(w, "  %d skip, %d apply, %d destructive\n\n", skips, applies-destructives, destructives)
}

func renderResult(w io.Writer, res *migrate.ExecutionResult) {
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	switch {
	case res.Err != nil:
		red.Fprintf(w, "✗ unit %d failed: %v\n", res.UnitID, res.Err)
	case res.AppliedCount == 0:
		green.Fprintf(w, "✓ unit %d already converged\n", res.UnitID)
	default:
		green.Fprintf(w, "✓ unit %d applied (%d steps, %d skipped)\n",
			res.UnitID, res.AppliedCount, res.SkippedCount)
	}
}
