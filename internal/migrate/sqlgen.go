package migrate

import (
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// quoteIdent quotes a PostgreSQL identifier to prevent SQL injection
func quoteIdent(name string) string {
	return fmt.Sprintf(`"%s"`, strings.ReplaceAll(name, `"`, `""`))
}

func renderColumnDef(c ColumnDef) string {
	var b strings.Builder
	b.WriteString(quoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(c.Type)
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

func renderEnsureTable(o *EnsureTable) Statement {
	parts := make([]string, 0, len(o.Columns)+1)
	for _, c := range o.Columns {
		parts = append(parts, renderColumnDef(c))
	}
	if len(o.PrimaryKey) > 0 {
		quoted := make([]string, len(o.PrimaryKey))
		for i, c := range o.PrimaryKey {
			quoted[i] = quoteIdent(c)
		}
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	return Statement{
		SQL: fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(o.Table), strings.Join(parts, ", ")),
	}
}

func renderEnsureColumn(table string, c ColumnDef) Statement {
	return Statement{
		SQL: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), renderColumnDef(c)),
	}
}

// renderAlterColumnType converts a column in place. usingExpr defaults to a
// direct cast of the current value when the author supplied no expression.
func renderAlterColumnType(table, column, newType, usingExpr string) Statement {
	if usingExpr == "" {
		usingExpr = fmt.Sprintf("%s::%s", quoteIdent(column), newType)
	}
	return Statement{
		SQL: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s",
			quoteIdent(table), quoteIdent(column), newType, usingExpr),
	}
}

func renderEnsureIndex(o *EnsureIndex) Statement {
	unique := ""
	if o.Unique {
		unique = "UNIQUE "
	}
	quoted := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		quoted[i] = quoteIdent(c)
	}
	return Statement{
		SQL: fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
			unique, quoteIdent(o.Name), quoteIdent(o.Table), strings.Join(quoted, ", ")),
	}
}

func renderAddForeignKey(name, table, column, refTable, refColumn, onDelete string) Statement {
	sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		quoteIdent(table), quoteIdent(name), quoteIdent(column), quoteIdent(refTable), quoteIdent(refColumn))
	if onDelete != "" && !strings.EqualFold(onDelete, "NO ACTION") {
		sql += " ON DELETE " + strings.ToUpper(onDelete)
	}
	return Statement{SQL: sql}
}

func renderDropConstraint(table, name string) Statement {
	return Statement{
		SQL: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quoteIdent(table), quoteIdent(name)),
	}
}

// buildBackfill renders the set-based UPDATE for a backfill operation.
// Assignment order is sorted so generated SQL is stable across runs.
func buildBackfill(o *Backfill) (Statement, error) {
	builder := sq.Update(quoteIdent(o.Table)).
		PlaceholderFormat(sq.Dollar).
		Where(sq.Expr(o.Predicate))

	cols := make([]string, 0, len(o.Set))
	for c := range o.Set {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		builder = builder.Set(quoteIdent(c), o.Set[c])
	}

	exprCols := make([]string, 0, len(o.SetExpr))
	for c := range o.SetExpr {
		exprCols = append(exprCols, c)
	}
	sort.Strings(exprCols)
	for _, c := range exprCols {
		builder = builder.Set(quoteIdent(c), sq.Expr(o.SetExpr[c]))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("failed to build backfill update: %w", err)
	}
	return Statement{SQL: sql, Args: args}, nil
}
