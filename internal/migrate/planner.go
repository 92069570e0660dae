package migrate

import (
	"fmt"

	"github.com/strata-db/strata/internal/introspect"
	"github.com/strata-db/strata/internal/logger"
)

// Planner classifies a unit's operations against a schema snapshot.
// Classification is total and side-effect-free: the same snapshot and unit
// always produce the same plan, and nothing touches the database, which is
// what makes dry-runs trustworthy.
type Planner struct {
	logger logger.Logger
}

func NewPlanner() *Planner {
	return &Planner{logger: logger.Plan()}
}

// Plan builds the classified step sequence for one unit. Plan-time errors
// (unresolvable donor types, authoring mistakes) surface here, before any
// mutation is possible.
func (p *Planner) Plan(snap *introspect.Snapshot, unit *Unit) (*Plan, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	view := newOverlay(snap)
	plan := &Plan{UnitID: unit.ID}

	for _, op := range unit.Operations {
		step, err := p.classify(view, unit, op)
		if err != nil {
			return nil, err
		}
		view.record(step)
		plan.Steps = append(plan.Steps, step)
	}

	plan.Steps = expandForeignKeyLifecycle(snap, plan.Steps)

	apply, skip := plan.Counts()
	p.logger.Debug("plan built", "unit", unit.ID, "apply", apply, "skip", skip, "destructive", plan.HasDestructive())
	return plan, nil
}

func (p *Planner) classify(view *overlay, unit *Unit, op Operation) (Step, error) {
	switch o := op.(type) {
	case *EnsureTable:
		return p.classifyEnsureTable(view, o), nil
	case *EnsureColumn:
		return p.classifyEnsureColumn(view, unit, o)
	case *AlterColumnType:
		return p.classifyAlterColumnType(view, unit, o)
	case *EnsureIndex:
		return p.classifyEnsureIndex(view, unit, o)
	case *EnsureForeignKey:
		return p.classifyEnsureForeignKey(view, o), nil
	case *DropForeignKey:
		return p.classifyDropForeignKey(view, o), nil
	case *Backfill:
		stmt, err := buildBackfill(o)
		if err != nil {
			return Step{}, &Error{Op: "plan", Unit: unit.ID, Table: o.Table, Err: err}
		}
		// Backfills are convergent by definition: the predicate stops
		// matching once the assignment holds, so re-running is a no-op.
		return Step{
			Op:         o,
			Class:      Apply,
			Rationale:  "backfills converge; reapplication touches zero rows",
			Statements: []Statement{stmt},
		}, nil
	case *DynamicTypeColumn:
		return p.classifyDynamicTypeColumn(view, unit, o)
	}
	return Step{}, &Error{Op: "plan", Unit: unit.ID, Err: fmt.Errorf("%w: unsupported operation %T", ErrInvalidUnit, op)}
}

func (p *Planner) classifyEnsureTable(view *overlay, o *EnsureTable) Step {
	if view.hasTable(o.Table) {
		return Step{Op: o, Class: Skip, Rationale: fmt.Sprintf("table %s already exists", o.Table)}
	}
	return Step{
		Op:         o,
		Class:      Apply,
		Rationale:  fmt.Sprintf("table %s does not exist", o.Table),
		Statements: []Statement{renderEnsureTable(o)},
	}
}

func (p *Planner) classifyEnsureColumn(view *overlay, unit *Unit, o *EnsureColumn) (Step, error) {
	return p.ensureColumn(view, unit, o, ColumnDef{
		Name:     o.Column,
		Type:     o.Type,
		Default:  o.Default,
		Nullable: o.Nullable,
	}, o.Table)
}

func (p *Planner) ensureColumn(view *overlay, unit *Unit, op Operation, def ColumnDef, table string) (Step, error) {
	if !view.hasTable(table) {
		return Step{}, &Error{
			Op: "plan", Unit: unit.ID, Table: table, Column: def.Name,
			Err: fmt.Errorf("%w: table %s does not exist and is not created earlier in the unit", ErrInvalidUnit, table),
		}
	}

	current, ok := view.columnType(table, def.Name)
	if ok {
		want := introspect.NormalizeType(def.Type)
		if current == want {
			return Step{Op: op, Class: Skip, Rationale: fmt.Sprintf("column %s.%s already exists as %s", table, def.Name, current)}, nil
		}
		// Drifted shape: adding would fail, altering was not asked for.
		p.logger.Warn("column exists with drifted type",
			"table", table, "column", def.Name, "live", current, "declared", want)
		return Step{
			Op:        op,
			Class:     Skip,
			Rationale: fmt.Sprintf("column %s.%s exists as %s, declared %s; drifted shape left untouched", table, def.Name, current, want),
		}, nil
	}

	return Step{
		Op:         op,
		Class:      Apply,
		Rationale:  fmt.Sprintf("column %s.%s does not exist", table, def.Name),
		Statements: []Statement{renderEnsureColumn(table, def)},
	}, nil
}

// losslessWidenings lists the in-place conversions postgres performs
// without any possibility of value loss.
var losslessWidenings = map[[2]string]bool{
	{"smallint", "integer"}:            true,
	{"smallint", "bigint"}:             true,
	{"integer", "bigint"}:              true,
	{"smallint", "numeric"}:            true,
	{"integer", "numeric"}:             true,
	{"bigint", "numeric"}:              true,
	{"real", "double precision"}:       true,
	{"character varying", "text"}:      true,
	{"character", "text"}:              true,
	{"character", "character varying"}: true,
}

func (p *Planner) classifyAlterColumnType(view *overlay, unit *Unit, o *AlterColumnType) (Step, error) {
	current, ok := view.columnType(o.Table, o.Column)
	if !ok {
		return Step{}, &Error{
			Op: "plan", Unit: unit.ID, Table: o.Table, Column: o.Column,
			Err: fmt.Errorf("%w: column %s.%s does not exist", ErrInvalidUnit, o.Table, o.Column),
		}
	}

	target := introspect.NormalizeType(o.NewType)
	if current == target {
		return Step{Op: o, Class: Skip, Rationale: fmt.Sprintf("column %s.%s is already %s", o.Table, o.Column, target)}, nil
	}

	stmt := renderAlterColumnType(o.Table, o.Column, o.NewType, o.ConversionExpr)

	if o.ConversionExpr != "" {
		return Step{
			Op:         o,
			Class:      Apply,
			Rationale:  fmt.Sprintf("author-supplied conversion expression from %s to %s", current, target),
			Statements: []Statement{stmt},
		}, nil
	}

	if losslessWidenings[[2]string{current, target}] {
		return Step{
			Op:         o,
			Class:      Apply,
			Rationale:  fmt.Sprintf("%s to %s is a lossless widening", current, target),
			Statements: []Statement{stmt},
		}, nil
	}

	return Step{
		Op:         o,
		Class:      Destructive,
		Rationale:  fmt.Sprintf("no lossless conversion from %s to %s and no conversion expression given; values that cannot cast will fail", current, target),
		Statements: []Statement{stmt},
	}, nil
}

func (p *Planner) classifyEnsureIndex(view *overlay, unit *Unit, o *EnsureIndex) (Step, error) {
	if !view.hasTable(o.Table) {
		return Step{}, &Error{
			Op: "plan", Unit: unit.ID, Table: o.Table,
			Err: fmt.Errorf("%w: table %s does not exist and is not created earlier in the unit", ErrInvalidUnit, o.Table),
		}
	}
	if view.hasIndex(o.Table, o.Name) {
		return Step{Op: o, Class: Skip, Rationale: fmt.Sprintf("index %s already exists", o.Name)}, nil
	}
	return Step{
		Op:         o,
		Class:      Apply,
		Rationale:  fmt.Sprintf("index %s does not exist", o.Name),
		Statements: []Statement{renderEnsureIndex(o)},
	}, nil
}

func (p *Planner) classifyEnsureForeignKey(view *overlay, o *EnsureForeignKey) Step {
	if view.hasForeignKey(o.Table, o.Column, o.RefTable, o.RefColumn) {
		return Step{
			Op:        o,
			Class:     Skip,
			Rationale: fmt.Sprintf("an equivalent foreign key on %s.%s already exists", o.Table, o.Column),
		}
	}
	return Step{
		Op:         o,
		Class:      Apply,
		Rationale:  fmt.Sprintf("no foreign key %s.%s -> %s.%s", o.Table, o.Column, o.RefTable, o.RefColumn),
		Statements: []Statement{renderAddForeignKey(o.ConstraintName(), o.Table, o.Column, o.RefTable, o.RefColumn, o.OnDelete)},
	}
}

func (p *Planner) classifyDropForeignKey(view *overlay, o *DropForeignKey) Step {
	if !view.hasConstraint(o.Table, o.ConstraintName) {
		return Step{Op: o, Class: Skip, Rationale: fmt.Sprintf("constraint %s is already absent", o.ConstraintName)}
	}
	return Step{
		Op:         o,
		Class:      Apply,
		Rationale:  fmt.Sprintf("constraint %s exists", o.ConstraintName),
		Statements: []Statement{renderDropConstraint(o.Table, o.ConstraintName)},
	}
}

func (p *Planner) classifyDynamicTypeColumn(view *overlay, unit *Unit, o *DynamicTypeColumn) (Step, error) {
	donorType, ok := view.columnType(o.SourceTable, o.SourceColumn)
	if !ok {
		return Step{}, &Error{
			Op: "plan", Unit: unit.ID, Table: o.SourceTable, Column: o.SourceColumn,
			Err: fmt.Errorf("%w: donor column %s.%s not found in live schema", ErrTypeDetectionFailed, o.SourceTable, o.SourceColumn),
		}
	}

	step, err := p.ensureColumn(view, unit, o, ColumnDef{
		Name:     o.Column,
		Type:     donorType,
		Default:  o.Default,
		Nullable: o.Nullable,
	}, o.Table)
	if err != nil {
		return Step{}, err
	}
	if step.Class == Apply {
		step.Rationale = fmt.Sprintf("column %s.%s does not exist; donor %s.%s resolved to %s",
			o.Table, o.Column, o.SourceTable, o.SourceColumn, donorType)
	}
	return step, nil
}

// overlay layers the effects of earlier steps in the same unit over the
// immutable snapshot, so one unit can create a table and then reference it.
type overlay struct {
	snap      *introspect.Snapshot
	tables    map[string]map[string]string // created table -> column -> normalized type
	columns   map[string]string            // "table.column" added -> normalized type
	altered   map[string]string            // "table.column" retyped -> normalized type
	indexes   map[string]bool              // "table.index" created
	fks       map[string]bool              // "table.column->ref.refcol" added
	dropped   map[string]bool              // "table.constraint" dropped
	addedCons map[string]bool              // "table.constraint" added
}

func newOverlay(snap *introspect.Snapshot) *overlay {
	return &overlay{
		snap:      snap,
		tables:    make(map[string]map[string]string),
		columns:   make(map[string]string),
		altered:   make(map[string]string),
		indexes:   make(map[string]bool),
		fks:       make(map[string]bool),
		dropped:   make(map[string]bool),
		addedCons: make(map[string]bool),
	}
}

func key2(a, b string) string { return a + "." + b }

func (v *overlay) hasTable(table string) bool {
	if _, ok := v.tables[table]; ok {
		return true
	}
	return v.snap.HasTable(table)
}

func (v *overlay) columnType(table, column string) (string, bool) {
	if t, ok := v.altered[key2(table, column)]; ok {
		return t, true
	}
	if t, ok := v.columns[key2(table, column)]; ok {
		return t, true
	}
	if cols, ok := v.tables[table]; ok {
		t, ok := cols[column]
		return t, ok
	}
	if col := v.snap.Column(table, column); col != nil {
		return introspect.NormalizeType(col.DataType), true
	}
	return "", false
}

func (v *overlay) hasIndex(table, name string) bool {
	return v.indexes[key2(table, name)] || v.snap.HasIndex(table, name)
}

func fkKey(table, column, refTable, refColumn string) string {
	return table + "." + column + "->" + refTable + "." + refColumn
}

func (v *overlay) hasForeignKey(table, column, refTable, refColumn string) bool {
	if v.fks[fkKey(table, column, refTable, refColumn)] {
		return true
	}
	t, ok := v.snap.Tables[table]
	if !ok {
		return false
	}
	for _, c := range t.Constraints {
		if c.Kind != introspect.ConstraintForeignKey {
			continue
		}
		if c.Table == table && c.Column == column && c.RefTable == refTable && c.RefColumn == refColumn {
			return !v.dropped[key2(table, c.Name)]
		}
	}
	return false
}

func (v *overlay) hasConstraint(table, name string) bool {
	if v.dropped[key2(table, name)] {
		return false
	}
	if v.addedCons[key2(table, name)] {
		return true
	}
	return v.snap.Constraint(table, name) != nil
}

// record folds an applied step's effects into the overlay. Skipped steps
// change nothing; destructive steps are treated as applied because
// classification of later operations must see their outcome.
func (v *overlay) record(step Step) {
	if step.Class == Skip {
		return
	}

	switch o := step.Op.(type) {
	case *EnsureTable:
		cols := make(map[string]string, len(o.Columns))
		for _, c := range o.Columns {
			cols[c.Name] = introspect.NormalizeType(c.Type)
		}
		v.tables[o.Table] = cols
	case *EnsureColumn:
		v.columns[key2(o.Table, o.Column)] = introspect.NormalizeType(o.Type)
	case *AlterColumnType:
		v.altered[key2(o.Table, o.Column)] = introspect.NormalizeType(o.NewType)
	case *EnsureIndex:
		v.indexes[key2(o.Table, o.Name)] = true
	case *EnsureForeignKey:
		v.fks[fkKey(o.Table, o.Column, o.RefTable, o.RefColumn)] = true
		v.addedCons[key2(o.Table, o.ConstraintName())] = true
	case *DropForeignKey:
		v.dropped[key2(o.Table, o.ConstraintName)] = true
	case *DynamicTypeColumn:
		// type resolution already happened; record under the declared name
		if t, ok := v.columnType(o.SourceTable, o.SourceColumn); ok {
			v.columns[key2(o.Table, o.Column)] = t
		}
	}
}
