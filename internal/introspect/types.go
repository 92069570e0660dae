package introspect

import (
	"strings"
	"time"
)

// ConstraintKind distinguishes the constraint categories strata cares about
type ConstraintKind string

const (
	ConstraintForeignKey ConstraintKind = "foreign-key"
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintCheck      ConstraintKind = "check"
	ConstraintPrimaryKey ConstraintKind = "primary-key"
)

// Snapshot is the live structural state of the requested tables at a single
// point in time. It is captured fresh for every planning pass and never
// mutated after capture.
type Snapshot struct {
	Tables     map[string]*TableInfo
	CapturedAt time.Time
}

// TableInfo describes one table's columns, constraints, and indexes
type TableInfo struct {
	Name        string
	Columns     map[string]*ColumnInfo
	Constraints []*ConstraintInfo
	PrimaryKey  []string
	Indexes     map[string]string // index name -> definition
}

// ColumnInfo describes a column's live shape
type ColumnInfo struct {
	Name       string
	DataType   string
	UDTName    string
	Nullable   bool
	HasDefault bool
}

// ConstraintInfo describes a named constraint. For foreign keys the
// referencing side is Table/Column and the referenced side is
// RefTable/RefColumn.
type ConstraintInfo struct {
	Name       string
	Kind       ConstraintKind
	Table      string
	Column     string
	RefTable   string
	RefColumn  string
	OnDelete   string
	Definition string
}

// HasTable reports whether the snapshot saw the named table
func (s *Snapshot) HasTable(table string) bool {
	_, ok := s.Tables[table]
	return ok
}

// Column returns the live column info, or nil when table or column is absent
func (s *Snapshot) Column(table, column string) *ColumnInfo {
	t, ok := s.Tables[table]
	if !ok {
		return nil
	}
	return t.Columns[column]
}

// HasIndex reports whether the named index exists on table
func (s *Snapshot) HasIndex(table, name string) bool {
	t, ok := s.Tables[table]
	if !ok {
		return false
	}
	_, ok = t.Indexes[name]
	return ok
}

// Constraint returns the named constraint on table, or nil
func (s *Snapshot) Constraint(table, name string) *ConstraintInfo {
	t, ok := s.Tables[table]
	if !ok {
		return nil
	}
	for _, c := range t.Constraints {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ForeignKeysTouching returns every foreign key whose definition involves
// table.column on either side. Inbound constraints (other tables referencing
// the column) sort first because they must be dropped before the column's
// type can change.
func (s *Snapshot) ForeignKeysTouching(table, column string) []*ConstraintInfo {
	var inbound, outbound []*ConstraintInfo
	for _, t := range s.Tables {
		for _, c := range t.Constraints {
			if c.Kind != ConstraintForeignKey {
				continue
			}
			switch {
			case c.RefTable == table && c.RefColumn == column:
				inbound = append(inbound, c)
			case c.Table == table && c.Column == column:
				outbound = append(outbound, c)
			}
		}
	}
	sortConstraints(inbound)
	sortConstraints(outbound)
	return append(inbound, outbound...)
}

func sortConstraints(cs []*ConstraintInfo) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && constraintLess(cs[j], cs[j-1]); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

func constraintLess(a, b *ConstraintInfo) bool {
	if a.Table != b.Table {
		return a.Table < b.Table
	}
	return a.Name < b.Name
}

// NormalizeType maps spelled-out SQL type names to the form the catalog
// reports, so planner comparisons are insensitive to aliasing drift between
// what a unit declares and what information_schema answers.
func NormalizeType(t string) string {
	n := strings.ToLower(strings.TrimSpace(t))
	switch n {
	case "int", "int4", "integer":
		return "integer"
	case "int8", "bigint", "bigserial", "serial8":
		return "bigint"
	case "int2", "smallint":
		return "smallint"
	case "serial", "serial4":
		return "integer"
	case "bool", "boolean":
		return "boolean"
	case "varchar", "character varying":
		return "character varying"
	case "char", "character":
		return "character"
	case "float8", "double precision":
		return "double precision"
	case "float4", "real":
		return "real"
	case "timestamptz", "timestamp with time zone":
		return "timestamp with time zone"
	case "timestamp", "timestamp without time zone":
		return "timestamp without time zone"
	case "decimal", "numeric":
		return "numeric"
	}
	if strings.HasPrefix(n, "varchar(") {
		return "character varying"
	}
	if strings.HasPrefix(n, "numeric(") || strings.HasPrefix(n, "decimal(") {
		return "numeric"
	}
	return n
}
