// Package history records migration unit runs in a tracking table. The
// table is bookkeeping only: convergence never depends on it, so losing
// the table just loses the audit trail.
package history

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/internal/migrate"
)

// DefaultTable is the tracking table name
const DefaultTable = "strata_runs"

// Run is one row of the tracking table
type Run struct {
	UnitID      int64     `db:"unit_id"`
	Description string    `db:"description"`
	Applied     int       `db:"applied_steps"`
	Skipped     int       `db:"skipped_steps"`
	Destructive bool      `db:"destructive"`
	Success     bool      `db:"success"`
	RanAt       time.Time `db:"ran_at"`
}

// Store reads and writes the tracking table
type Store struct {
	db     *sqlx.DB
	table  string
	logger logger.Logger
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:     db,
		table:  DefaultTable,
		logger: logger.DB(),
	}
}

// WithTable overrides the tracking table name
func (s *Store) WithTable(name string) *Store {
	s.table = name
	return s
}

// EnsureTable creates the tracking table when it does not exist
func (s *Store) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			unit_id BIGINT NOT NULL,
			description TEXT NOT NULL,
			applied_steps INTEGER NOT NULL,
			skipped_steps INTEGER NOT NULL,
			destructive BOOLEAN NOT NULL,
			success BOOLEAN NOT NULL,
			ran_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tracking table: %w", err)
	}
	return nil
}

// Exists reports whether the tracking table is present, so read-only
// callers can avoid creating it
func (s *Store) Exists(ctx context.Context) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1)`

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, s.table); err != nil {
		return false, fmt.Errorf("failed to check tracking table: %w", err)
	}
	return exists, nil
}

// Record appends the outcome of one unit execution
func (s *Store) Record(ctx context.Context, res *migrate.ExecutionResult) error {
	query, args, err := sq.Insert(s.table).
		Columns("unit_id", "description", "applied_steps", "skipped_steps", "destructive", "success").
		Values(res.UnitID, res.Description, res.AppliedCount, res.SkippedCount, res.Destructive, res.Err == nil).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	s.logger.Debug("run recorded", "unit", res.UnitID, "success", res.Err == nil)
	return nil
}

// Runs returns the recorded runs, most recent first
func (s *Store) Runs(ctx context.Context, limit uint64) ([]*Run, error) {
	builder := sq.Select("unit_id", "description", "applied_steps", "skipped_steps", "destructive", "success", "ran_at").
		From(s.table).
		OrderBy("ran_at DESC, id DESC").
		PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		builder = builder.Limit(limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build run query: %w", err)
	}

	var runs []*Run
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	return runs, nil
}

// LastSuccessfulUnit returns the highest unit id with a successful run,
// or zero when nothing has run yet
func (s *Store) LastSuccessfulUnit(ctx context.Context) (int64, error) {
	query, args, err := sq.Select("COALESCE(MAX(unit_id), 0)").
		From(s.table).
		Where(sq.Eq{"success": true}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build last unit query: %w", err)
	}

	var id int64
	if err := s.db.GetContext(ctx, &id, query, args...); err != nil {
		return 0, fmt.Errorf("failed to query last successful unit: %w", err)
	}
	return id, nil
}
