package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/strata-db/strata/internal/introspect"
	"github.com/strata-db/strata/internal/logger"
)

// SnapshotSource abstracts the introspector so execution can be tested
// against canned snapshots
type SnapshotSource interface {
	Snapshot(ctx context.Context, tables []string) (*introspect.Snapshot, error)
}

// ExecutionResult reports the outcome of one unit
type ExecutionResult struct {
	UnitID       int64
	Description  string
	AppliedCount int
	SkippedCount int
	// Destructive records whether the plan contained a destructive step,
	// authorized or not
	Destructive bool
	Aborted     bool
	Err         error
}

// Engine plans and applies migration units, one transaction per unit.
// It assumes a single migration run at a time; mutual exclusion across
// concurrent invocations belongs to the caller (an advisory lock, say).
type Engine struct {
	db      *sqlx.DB
	source  SnapshotSource
	planner *Planner
	schema  string
	logger  logger.Logger
}

func NewEngine(db *sqlx.DB) *Engine {
	return &Engine{
		db:      db,
		source:  introspect.NewInspector(db),
		planner: NewPlanner(),
		schema:  "public",
		logger:  logger.Migrate(),
	}
}

// NewEngineWithSource builds an engine over an explicit snapshot source
func NewEngineWithSource(db *sqlx.DB, source SnapshotSource) *Engine {
	e := NewEngine(db)
	e.source = source
	return e
}

// WithSchema scopes both introspection and execution to another schema.
// Generated DDL is unqualified, so the unit's transaction pins
// search_path to the same schema the snapshot was read from.
func (e *Engine) WithSchema(schema string) *Engine {
	e.schema = schema
	if ins, ok := e.source.(*introspect.Inspector); ok {
		e.source = ins.WithSchema(schema)
	}
	return e
}

// DryRun builds and returns the plan for a unit without executing anything
func (e *Engine) DryRun(ctx context.Context, unit *Unit) (*Plan, error) {
	snap, err := e.source.Snapshot(ctx, unit.Tables())
	if err != nil {
		return nil, &Error{Op: "snapshot", Unit: unit.ID, Err: err}
	}
	return e.planner.Plan(snap, unit)
}

// Apply plans and executes one unit inside a single transaction.
//
// If the plan contains a destructive step and neither the unit author nor
// the caller authorized it, the unit aborts before any mutation: partial
// application must never occur because an authorization check failed. Any
// step failure rolls back the whole unit; earlier units already committed
// by ApplyAll are unaffected.
func (e *Engine) Apply(ctx context.Context, unit *Unit, allowDestructive bool) (*ExecutionResult, error) {
	result := &ExecutionResult{UnitID: unit.ID, Description: unit.Description}

	plan, err := e.DryRun(ctx, unit)
	if err != nil {
		result.Aborted = true
		result.Err = err
		return result, err
	}

	result.Destructive = plan.HasDestructive()

	if result.Destructive && !unit.DestructiveAllowed && !allowDestructive {
		err := &Error{Op: "gate", Unit: unit.ID, Err: fmt.Errorf("%w: re-run with --allow-destructive to proceed", ErrDestructiveBlocked)}
		result.Aborted = true
		result.Err = err
		e.logger.Warn("unit blocked by destructive step", "unit", unit.ID)
		return result, err
	}

	apply, skip := plan.Counts()
	result.SkippedCount = skip
	if apply == 0 {
		e.logger.Info("unit is a no-op", "unit", unit.ID, "skipped", skip)
		return result, nil
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		result.Aborted = true
		result.Err = &Error{Op: "begin", Unit: unit.ID, Err: classifyExecError(err)}
		return result, result.Err
	}
	defer tx.Rollback()

	if e.schema != "public" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+quoteIdent(e.schema)); err != nil {
			result.Aborted = true
			result.Err = &Error{Op: "search_path", Unit: unit.ID, Err: classifyExecError(err)}
			return result, result.Err
		}
	}

	for _, step := range plan.Steps {
		if step.Class == Skip {
			continue
		}
		for _, stmt := range step.Statements {
			res, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...)
			if err != nil {
				execErr := e.stepError(unit.ID, step, err)
				result.Aborted = true
				result.Err = execErr
				e.logger.Error("step failed, rolling back unit",
					"unit", unit.ID, "op", step.Op.Describe(), "error", err)
				return result, execErr
			}
			if bf, ok := step.Op.(*Backfill); ok {
				if rows, raErr := res.RowsAffected(); raErr == nil {
					logger.Backfill().Info("backfill applied", "unit", unit.ID, "table", bf.Table, "rows", rows)
				}
			}
		}
		result.AppliedCount++
	}

	if err := tx.Commit(); err != nil {
		result.Aborted = true
		result.AppliedCount = 0
		result.Err = &Error{Op: "commit", Unit: unit.ID, Err: classifyExecError(err)}
		return result, result.Err
	}

	e.logger.Info("unit applied", "unit", unit.ID, "applied", result.AppliedCount, "skipped", result.SkippedCount)
	return result, nil
}

// ApplyAll runs units strictly in order, stopping at the first abort.
// Unit N+1 is never planned before unit N's transaction has resolved,
// because its plan depends on the post-N schema.
func (e *Engine) ApplyAll(ctx context.Context, units []*Unit, allowDestructive bool) ([]*ExecutionResult, error) {
	var results []*ExecutionResult
	for _, unit := range units {
		result, err := e.Apply(ctx, unit, allowDestructive)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Engine) stepError(unitID int64, step Step, err error) error {
	classified := classifyExecError(err)

	me := &Error{Op: "exec", Unit: unitID, Err: fmt.Errorf("%s: %w", step.Op.Describe(), classified)}
	switch o := step.Op.(type) {
	case *EnsureTable:
		me.Table = o.Table
	case *EnsureColumn:
		me.Table, me.Column = o.Table, o.Column
	case *AlterColumnType:
		me.Table, me.Column = o.Table, o.Column
	case *EnsureIndex:
		me.Table = o.Table
	case *EnsureForeignKey:
		me.Table, me.Column, me.Constraint = o.Table, o.Column, o.ConstraintName()
	case *DropForeignKey:
		me.Table, me.Constraint = o.Table, o.ConstraintName
	case *Backfill:
		me.Table = o.Table
	case *DynamicTypeColumn:
		me.Table, me.Column = o.Table, o.Column
	}
	return me
}

// IsDestructiveBlocked reports whether err is the destructive gate firing
func IsDestructiveBlocked(err error) bool {
	return errors.Is(err, ErrDestructiveBlocked)
}
