package migrate

import (
	"fmt"

	"github.com/strata-db/strata/internal/introspect"
)

// expandForeignKeyLifecycle rewrites a classified step list so that every
// destructive column type change is bracketed by the constraint surgery it
// needs: dependents' foreign keys are dropped first (innermost-dependent
// ordering), the referencing columns are converted alongside the target
// column, and every dropped constraint is recreated with its original
// definition after all structural steps complete.
//
// The injected drop/recreate steps are classified Apply: the destructive
// step they serve is the gate, and once that gate is passed the bracket is
// mandatory for the conversion to succeed at all.
func expandForeignKeyLifecycle(snap *introspect.Snapshot, steps []Step) []Step {
	var out []Step
	var recreates []Step

	for _, step := range steps {
		alter, ok := step.Op.(*AlterColumnType)
		if !ok || step.Class != Destructive {
			out = append(out, step)
			continue
		}

		fks := snap.ForeignKeysTouching(alter.Table, alter.Column)
		if len(fks) == 0 {
			out = append(out, step)
			continue
		}

		for _, fk := range fks {
			out = append(out, Step{
				Op:         &DropForeignKey{Table: fk.Table, ConstraintName: fk.Name},
				Class:      Apply,
				Rationale:  fmt.Sprintf("constraint %s blocks the type change of %s.%s", fk.Name, alter.Table, alter.Column),
				Statements: []Statement{renderDropConstraint(fk.Table, fk.Name)},
			})
		}

		out = append(out, step)

		// Referencing columns must match the new type before their
		// constraints can come back.
		for _, fk := range fks {
			if fk.RefTable != alter.Table || fk.RefColumn != alter.Column {
				continue
			}
			out = append(out, Step{
				Op: &AlterColumnType{
					Table:          fk.Table,
					Column:         fk.Column,
					NewType:        alter.NewType,
					ConversionExpr: alter.ConversionExpr,
				},
				Class:      Apply,
				Rationale:  fmt.Sprintf("referencing column %s.%s must follow the type of %s.%s", fk.Table, fk.Column, alter.Table, alter.Column),
				Statements: []Statement{renderAlterColumnType(fk.Table, fk.Column, alter.NewType, alter.ConversionExpr)},
			})
		}

		// Recreations run after every structural step, in reverse drop
		// order, so a dependent's constraint only returns once the
		// referenced side's new type is in place.
		for i := len(fks) - 1; i >= 0; i-- {
			fk := fks[i]
			recreates = append(recreates, Step{
				Op: &EnsureForeignKey{
					Table:     fk.Table,
					Column:    fk.Column,
					RefTable:  fk.RefTable,
					RefColumn: fk.RefColumn,
					OnDelete:  fk.OnDelete,
					Name:      fk.Name,
				},
				Class:      Apply,
				Rationale:  fmt.Sprintf("recreate %s dropped for the type change of %s.%s", fk.Name, alter.Table, alter.Column),
				Statements: []Statement{renderAddForeignKey(fk.Name, fk.Table, fk.Column, fk.RefTable, fk.RefColumn, fk.OnDelete)},
			})
		}
	}

	if len(recreates) == 0 {
		return out
	}

	// Insert recreations after the last structural step so backfills keep
	// their authored position relative to each other but run with all
	// constraints restored.
	insertAt := len(out)
	for i := len(out) - 1; i >= 0; i-- {
		if _, isBackfill := out[i].Op.(*Backfill); !isBackfill {
			insertAt = i + 1
			break
		}
	}

	expanded := make([]Step, 0, len(out)+len(recreates))
	expanded = append(expanded, out[:insertAt]...)
	expanded = append(expanded, recreates...)
	expanded = append(expanded, out[insertAt:]...)
	return expanded
}
