package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/migrate"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres")), mock
}

func TestEnsureTable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS strata_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSuccess(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO strata_runs (unit_id,description,applied_steps,skipped_steps,destructive,success) VALUES ($1,$2,$3,$4,$5,$6)")).
		WithArgs(int64(3), "add verified flag", 2, 1, false, true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res := &migrate.ExecutionResult{
		UnitID:       3,
		Description:  "add verified flag",
		AppliedCount: 2,
		SkippedCount: 1,
	}
	require.NoError(t, store.Record(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDestructiveReflectsPlan(t *testing.T) {
	store, mock := newMockStore(t)

	// the column mirrors the plan's classification, not the caller's
	// authorization flag
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO strata_runs")).
		WithArgs(int64(5), "widen account id", 7, 0, true, true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res := &migrate.ExecutionResult{
		UnitID:       5,
		Description:  "widen account id",
		AppliedCount: 7,
		Destructive:  true,
	}
	require.NoError(t, store.Record(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO strata_runs")).
		WithArgs(int64(4), "widen account id", 0, 0, true, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res := &migrate.ExecutionResult{
		UnitID:      4,
		Description: "widen account id",
		Destructive: true,
		Err:         errors.New("constraint violation"),
	}
	require.NoError(t, store.Record(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1)")).
		WithArgs("strata_runs").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsMostRecentFirst(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"unit_id", "description", "applied_steps", "skipped_steps", "destructive", "success", "ran_at",
	}).
		AddRow(int64(2), "add verified flag", 2, 0, false, true, time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)).
		AddRow(int64(1), "create accounts", 1, 0, false, true, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY ran_at DESC, id DESC LIMIT 10")).
		WillReturnRows(rows)

	runs, err := store.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(2), runs[0].UnitID)
	assert.True(t, runs[1].Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastSuccessfulUnit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(unit_id), 0) FROM strata_runs WHERE success = $1")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(7)))

	id, err := store.LastSuccessfulUnit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTable(t *testing.T) {
	store, mock := newMockStore(t)
	store.WithTable("audit_runs")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
