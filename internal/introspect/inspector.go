package introspect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/strata-db/strata/internal/logger"
)

// ErrIntrospectionFailed marks catalog reads that could not be answered.
// Planning against a partial snapshot is never safe, so callers treat this
// as fatal for the unit being planned.
var ErrIntrospectionFailed = errors.New("schema introspection failed")

// Inspector captures live schema snapshots from a PostgreSQL catalog
type Inspector struct {
	db     *sqlx.DB
	schema string
	logger logger.Logger
}

// NewInspector creates an inspector bound to the given connection.
// Snapshots are scoped to the public schema unless overridden.
func NewInspector(db *sqlx.DB) *Inspector {
	return &Inspector{
		db:     db,
		schema: "public",
		logger: logger.Introspect(),
	}
}

// WithSchema returns a copy of the inspector scoped to another schema
func (i *Inspector) WithSchema(schema string) *Inspector {
	clone := *i
	clone.schema = schema
	return &clone
}

// Snapshot reads the authoritative catalog state for the named tables.
// The result always reflects the database at call time; nothing is cached
// between calls because migrations may be applied by independent tooling
// runs. Foreign keys referencing the requested tables from elsewhere are
// included so constraint lifecycle ordering can see its dependents.
func (i *Inspector) Snapshot(ctx context.Context, tables []string) (*Snapshot, error) {
	snap := &Snapshot{
		Tables:     make(map[string]*TableInfo),
		CapturedAt: time.Now(),
	}
	if len(tables) == 0 {
		return snap, nil
	}

	existing, err := i.existingTables(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %v", ErrIntrospectionFailed, err)
	}

	for _, name := range existing {
		info := &TableInfo{
			Name:    name,
			Columns: make(map[string]*ColumnInfo),
			Indexes: make(map[string]string),
		}

		if err := i.loadColumns(ctx, info); err != nil {
			return nil, fmt.Errorf("%w: columns of %s: %v", ErrIntrospectionFailed, name, err)
		}
		if err := i.loadPrimaryKey(ctx, info); err != nil {
			return nil, fmt.Errorf("%w: primary key of %s: %v", ErrIntrospectionFailed, name, err)
		}
		if err := i.loadCheckAndUnique(ctx, info); err != nil {
			return nil, fmt.Errorf("%w: constraints of %s: %v", ErrIntrospectionFailed, name, err)
		}
		if err := i.loadIndexes(ctx, info); err != nil {
			return nil, fmt.Errorf("%w: indexes of %s: %v", ErrIntrospectionFailed, name, err)
		}

		snap.Tables[name] = info
	}

	if err := i.loadForeignKeys(ctx, snap, existing); err != nil {
		return nil, fmt.Errorf("%w: foreign keys: %v", ErrIntrospectionFailed, err)
	}

	i.logger.Debug("snapshot captured", "requested", len(tables), "found", len(snap.Tables))
	return snap, nil
}

func (i *Inspector) existingTables(ctx context.Context, tables []string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_type = 'BASE TABLE'
		AND table_name = ANY($2)
		ORDER BY table_name
	`

	rows, err := i.db.QueryContext(ctx, query, i.schema, pq.Array(tables))
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (i *Inspector) loadColumns(ctx context.Context, table *TableInfo) error {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.udt_name,
			c.is_nullable = 'YES' as is_nullable,
			c.column_default IS NOT NULL as has_default
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := i.db.QueryContext(ctx, query, i.schema, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		col := &ColumnInfo{}
		if err := rows.Scan(&col.Name, &col.DataType, &col.UDTName, &col.Nullable, &col.HasDefault); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}
		// information_schema reports USER-DEFINED for enums and ARRAY for
		// arrays; the udt name carries the real type there.
		if col.DataType == "USER-DEFINED" || col.DataType == "ARRAY" {
			col.DataType = col.UDTName
		}
		table.Columns[col.Name] = col
	}

	return rows.Err()
}

func (i *Inspector) loadPrimaryKey(ctx context.Context, table *TableInfo) error {
	query := `
		SELECT
			tc.constraint_name,
			array_agg(kcu.column_name ORDER BY kcu.ordinal_position) as columns
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		AND tc.table_schema = $1
		AND tc.table_name = $2
		GROUP BY tc.constraint_name
	`

	var name string
	var columns pq.StringArray

	err := i.db.QueryRowContext(ctx, query, i.schema, table.Name).Scan(&name, &columns)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query primary key: %w", err)
	}

	table.PrimaryKey = []string(columns)
	table.Constraints = append(table.Constraints, &ConstraintInfo{
		Name:   name,
		Kind:   ConstraintPrimaryKey,
		Table:  table.Name,
		Column: firstOrEmpty(columns),
	})
	return nil
}

func (i *Inspector) loadCheckAndUnique(ctx context.Context, table *TableInfo) error {
	query := `
		SELECT
			tc.constraint_name,
			tc.constraint_type,
			pg_get_constraintdef(c.oid) as definition,
			COALESCE(array_agg(kcu.column_name ORDER BY kcu.ordinal_position) FILTER (WHERE kcu.column_name IS NOT NULL), '{}') as columns
		FROM information_schema.table_constraints tc
		JOIN pg_constraint c ON c.conname = tc.constraint_name
		JOIN pg_namespace n ON n.oid = c.connamespace AND n.nspname = tc.constraint_schema
		LEFT JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = $1
		AND tc.table_name = $2
		AND tc.constraint_type IN ('CHECK', 'UNIQUE')
		GROUP BY tc.constraint_name, tc.constraint_type, c.oid
		ORDER BY tc.constraint_name
	`

	rows, err := i.db.QueryContext(ctx, query, i.schema, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query constraints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, ctype, definition string
		var columns pq.StringArray

		if err := rows.Scan(&name, &ctype, &definition, &columns); err != nil {
			return fmt.Errorf("failed to scan constraint: %w", err)
		}

		kind := ConstraintCheck
		if ctype == "UNIQUE" {
			kind = ConstraintUnique
		}

		table.Constraints = append(table.Constraints, &ConstraintInfo{
			Name:       name,
			Kind:       kind,
			Table:      table.Name,
			Column:     firstOrEmpty(columns),
			Definition: definition,
		})
	}

	return rows.Err()
}

func (i *Inspector) loadIndexes(ctx context.Context, table *TableInfo) error {
	query := `
		SELECT indexname, indexdef
		FROM pg_indexes
		WHERE schemaname = $1 AND tablename = $2
		ORDER BY indexname
	`

	rows, err := i.db.QueryContext(ctx, query, i.schema, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return fmt.Errorf("failed to scan index: %w", err)
		}
		table.Indexes[name] = def
	}

	return rows.Err()
}

// loadForeignKeys collects every foreign key where either side touches one
// of the requested tables, including constraints owned by tables outside
// the requested set. Those inbound constraints are attached to the
// referenced table's info so a snapshot of just the changing table still
// sees its dependents.
func (i *Inspector) loadForeignKeys(ctx context.Context, snap *Snapshot, tables []string) error {
	if len(tables) == 0 {
		return nil
	}

	query := `
		SELECT
			tc.constraint_name,
			tc.table_name,
			array_agg(kcu.column_name ORDER BY kcu.ordinal_position) as columns,
			ccu.table_name as referenced_table,
			array_agg(ccu.column_name ORDER BY kcu.ordinal_position) as referenced_columns,
			rc.delete_rule,
			pg_get_constraintdef(con.oid) as definition
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.constraint_schema
		JOIN information_schema.referential_constraints rc
			ON tc.constraint_name = rc.constraint_name
			AND tc.table_schema = rc.constraint_schema
		JOIN pg_constraint con ON con.conname = tc.constraint_name
		JOIN pg_namespace n ON n.oid = con.connamespace AND n.nspname = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		AND tc.table_schema = $1
		AND (tc.table_name = ANY($2) OR ccu.table_name = ANY($2))
		GROUP BY tc.constraint_name, tc.table_name, ccu.table_name, rc.delete_rule, con.oid
		ORDER BY tc.table_name, tc.constraint_name
	`

	rows, err := i.db.QueryContext(ctx, query, i.schema, pq.Array(tables))
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, owner, refTable, deleteRule, definition string
		var columns, refColumns pq.StringArray

		if err := rows.Scan(&name, &owner, &columns, &refTable, &refColumns, &deleteRule, &definition); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}

		fk := &ConstraintInfo{
			Name:       name,
			Kind:       ConstraintForeignKey,
			Table:      owner,
			Column:     firstOrEmpty(columns),
			RefTable:   refTable,
			RefColumn:  firstOrEmpty(refColumns),
			OnDelete:   deleteRule,
			Definition: definition,
		}

		attachTo := owner
		if _, ok := snap.Tables[attachTo]; !ok {
			attachTo = refTable
		}
		if t, ok := snap.Tables[attachTo]; ok {
			t.Constraints = append(t.Constraints, fk)
		}
	}

	return rows.Err()
}

func firstOrEmpty(arr pq.StringArray) string {
	if len(arr) == 0 {
		return ""
	}
	return arr[0]
}
