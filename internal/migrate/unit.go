package migrate

import (
	"fmt"
	"sort"
)

// Kind tags the operation variants a unit may contain
type Kind string

const (
	KindEnsureTable       Kind = "ensure_table"
	KindEnsureColumn      Kind = "ensure_column"
	KindAlterColumnType   Kind = "alter_column_type"
	KindEnsureIndex       Kind = "ensure_index"
	KindEnsureForeignKey  Kind = "ensure_foreign_key"
	KindDropForeignKey    Kind = "drop_foreign_key"
	KindBackfill          Kind = "backfill"
	KindDynamicTypeColumn Kind = "dynamic_type_column"
)

// Operation is one declarative schema or data change inside a unit.
// Implementations carry enough information for the planner to decide
// idempotency from a snapshot alone.
type Operation interface {
	OpKind() Kind
	Describe() string
}

// ColumnDef declares one column of an EnsureTable operation
type ColumnDef struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Default  string `yaml:"default,omitempty"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

// EnsureTable creates a table when it does not exist
type EnsureTable struct {
	Table      string      `yaml:"table"`
	Columns    []ColumnDef `yaml:"columns"`
	PrimaryKey []string    `yaml:"primary_key,omitempty"`
}

func (o *EnsureTable) OpKind() Kind { return KindEnsureTable }
func (o *EnsureTable) Describe() string {
	return fmt.Sprintf("ensure table %s (%d columns)", o.Table, len(o.Columns))
}

// EnsureColumn adds a column when it does not exist
type EnsureColumn struct {
	Table    string `yaml:"table"`
	Column   string `yaml:"column"`
	Type     string `yaml:"type"`
	Default  string `yaml:"default,omitempty"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

func (o *EnsureColumn) OpKind() Kind { return KindEnsureColumn }
func (o *EnsureColumn) Describe() string {
	return fmt.Sprintf("ensure column %s.%s %s", o.Table, o.Column, o.Type)
}

// AlterColumnType converts a column's type in place. ConversionExpr, when
// set, is the author's value-preserving USING expression; without it only
// recognized widening conversions are considered safe.
type AlterColumnType struct {
	Table          string `yaml:"table"`
	Column         string `yaml:"column"`
	NewType        string `yaml:"new_type"`
	ConversionExpr string `yaml:"conversion_expr,omitempty"`
}

func (o *AlterColumnType) OpKind() Kind { return KindAlterColumnType }
func (o *AlterColumnType) Describe() string {
	return fmt.Sprintf("alter column %s.%s type to %s", o.Table, o.Column, o.NewType)
}

// EnsureIndex creates an index when no index of that name exists
type EnsureIndex struct {
	Table   string   `yaml:"table"`
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

func (o *EnsureIndex) OpKind() Kind { return KindEnsureIndex }
func (o *EnsureIndex) Describe() string {
	return fmt.Sprintf("ensure index %s on %s", o.Name, o.Table)
}

// EnsureForeignKey adds a single-column foreign key when no equivalent
// constraint exists. Name is optional; the postgres naming convention is
// used when empty.
type EnsureForeignKey struct {
	Table     string `yaml:"table"`
	Column    string `yaml:"column"`
	RefTable  string `yaml:"ref_table"`
	RefColumn string `yaml:"ref_column"`
	OnDelete  string `yaml:"on_delete,omitempty"`
	Name      string `yaml:"name,omitempty"`
}

func (o *EnsureForeignKey) OpKind() Kind { return KindEnsureForeignKey }
func (o *EnsureForeignKey) Describe() string {
	return fmt.Sprintf("ensure foreign key %s.%s -> %s.%s", o.Table, o.Column, o.RefTable, o.RefColumn)
}

// ConstraintName returns the explicit name or the postgres convention
func (o *EnsureForeignKey) ConstraintName() string {
	if o.Name != "" {
		return o.Name
	}
	return fmt.Sprintf("%s_%s_fkey", o.Table, o.Column)
}

// DropForeignKey removes a named constraint when it exists
type DropForeignKey struct {
	Table          string `yaml:"table"`
	ConstraintName string `yaml:"constraint_name"`
}

func (o *DropForeignKey) OpKind() Kind { return KindDropForeignKey }
func (o *DropForeignKey) Describe() string {
	return fmt.Sprintf("drop foreign key %s on %s", o.ConstraintName, o.Table)
}

// Backfill is a set-based data correction: one UPDATE over all rows
// matching Predicate. Authors write the predicate over the
// post-assignment state being unmet, making repeated execution converge
// to zero touched rows. Set holds literal values; SetExpr holds raw SQL
// expressions evaluated per row.
type Backfill struct {
	Table     string                 `yaml:"table"`
	Predicate string                 `yaml:"predicate"`
	Set       map[string]interface{} `yaml:"set,omitempty"`
	SetExpr   map[string]string      `yaml:"set_expr,omitempty"`
}

func (o *Backfill) OpKind() Kind { return KindBackfill }
func (o *Backfill) Describe() string {
	return fmt.Sprintf("backfill %s where %s", o.Table, o.Predicate)
}

// DynamicTypeColumn adds a column whose type is copied from another
// column's current live type at plan time. It never falls back to a
// guessed type: an unresolvable donor fails the plan.
type DynamicTypeColumn struct {
	Table        string `yaml:"table"`
	Column       string `yaml:"column"`
	SourceTable  string `yaml:"source_table"`
	SourceColumn string `yaml:"source_column"`
	Default      string `yaml:"default,omitempty"`
	Nullable     bool   `yaml:"nullable,omitempty"`
}

func (o *DynamicTypeColumn) OpKind() Kind { return KindDynamicTypeColumn }
func (o *DynamicTypeColumn) Describe() string {
	return fmt.Sprintf("ensure column %s.%s typed from %s.%s", o.Table, o.Column, o.SourceTable, o.SourceColumn)
}

// Unit is one coherent, independently transactional set of operations.
// Units are authored externally and never mutated at runtime; ordering
// between units is by ID and is significant.
type Unit struct {
	ID                 int64
	Description        string
	DestructiveAllowed bool
	Operations         []Operation
}

// Tables returns every table a unit's operations reference, sorted, for
// snapshot scoping
func (u *Unit) Tables() []string {
	seen := make(map[string]struct{})
	add := func(names ...string) {
		for _, n := range names {
			if n != "" {
				seen[n] = struct{}{}
			}
		}
	}

	for _, op := range u.Operations {
		switch o := op.(type) {
		case *EnsureTable:
			add(o.Table)
		case *EnsureColumn:
			add(o.Table)
		case *AlterColumnType:
			add(o.Table)
		case *EnsureIndex:
			add(o.Table)
		case *EnsureForeignKey:
			add(o.Table, o.RefTable)
		case *DropForeignKey:
			add(o.Table)
		case *Backfill:
			add(o.Table)
		case *DynamicTypeColumn:
			add(o.Table, o.SourceTable)
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks structural authoring mistakes that do not need a snapshot
func (u *Unit) Validate() error {
	if u.ID <= 0 {
		return fmt.Errorf("%w: unit id must be positive, got %d", ErrInvalidUnit, u.ID)
	}
	if len(u.Operations) == 0 {
		return fmt.Errorf("%w: unit %d has no operations", ErrInvalidUnit, u.ID)
	}

	for idx, op := range u.Operations {
		if err := validateOperation(op); err != nil {
			return fmt.Errorf("%w: unit %d operation %d: %v", ErrInvalidUnit, u.ID, idx, err)
		}
	}
	return nil
}

func validateOperation(op Operation) error {
	switch o := op.(type) {
	case *EnsureTable:
		if o.Table == "" || len(o.Columns) == 0 {
			return fmt.Errorf("ensure_table requires a table name and columns")
		}
	case *EnsureColumn:
		if o.Table == "" || o.Column == "" || o.Type == "" {
			return fmt.Errorf("ensure_column requires table, column, and type")
		}
	case *AlterColumnType:
		if o.Table == "" || o.Column == "" || o.NewType == "" {
			return fmt.Errorf("alter_column_type requires table, column, and new_type")
		}
	case *EnsureIndex:
		if o.Table == "" || o.Name == "" || len(o.Columns) == 0 {
			return fmt.Errorf("ensure_index requires table, name, and columns")
		}
	case *EnsureForeignKey:
		if o.Table == "" || o.Column == "" || o.RefTable == "" || o.RefColumn == "" {
			return fmt.Errorf("ensure_foreign_key requires table, column, ref_table, and ref_column")
		}
	case *DropForeignKey:
		if o.Table == "" || o.ConstraintName == "" {
			return fmt.Errorf("drop_foreign_key requires table and constraint_name")
		}
	case *Backfill:
		if o.Table == "" || o.Predicate == "" {
			return fmt.Errorf("backfill requires table and predicate")
		}
		if len(o.Set) == 0 && len(o.SetExpr) == 0 {
			return fmt.Errorf("backfill requires at least one assignment")
		}
	case *DynamicTypeColumn:
		if o.Table == "" || o.Column == "" || o.SourceTable == "" || o.SourceColumn == "" {
			return fmt.Errorf("dynamic_type_column requires table, column, source_table, and source_column")
		}
	default:
		return fmt.Errorf("unknown operation kind %T", op)
	}
	return nil
}
