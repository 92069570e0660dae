package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/migrate"
)

const accountsUnit = `
id: 1
description: create accounts
operations:
  - kind: ensure_table
    table: accounts
    columns:
      - name: id
        type: bigint
      - name: email
        type: text
    primary_key: [id]
  - kind: ensure_index
    table: accounts
    name: accounts_email_idx
    columns: [email]
    unique: true
`

const verifiedUnit = `
id: 2
description: add verified flag
operations:
  - kind: ensure_column
    table: accounts
    column: verified
    type: boolean
    default: "false"
  - kind: backfill
    table: accounts
    predicate: "kind = 'trusted' AND verified IS NOT TRUE"
    set:
      verified: true
    set_expr:
      updated_at: now()
`

func TestParseUnit(t *testing.T) {
	unit, err := ParseUnit([]byte(accountsUnit))
	require.NoError(t, err)

	assert.Equal(t, int64(1), unit.ID)
	assert.Equal(t, "create accounts", unit.Description)
	assert.False(t, unit.DestructiveAllowed)
	require.Len(t, unit.Operations, 2)

	ct, ok := unit.Operations[0].(*migrate.EnsureTable)
	require.True(t, ok)
	assert.Equal(t, "accounts", ct.Table)
	require.Len(t, ct.Columns, 2)
	assert.Equal(t, "bigint", ct.Columns[0].Type)
	assert.Equal(t, []string{"id"}, ct.PrimaryKey)

	idx, ok := unit.Operations[1].(*migrate.EnsureIndex)
	require.True(t, ok)
	assert.True(t, idx.Unique)
	assert.Equal(t, []string{"email"}, idx.Columns)
}

func TestParseUnitBackfillMaps(t *testing.T) {
	unit, err := ParseUnit([]byte(verifiedUnit))
	require.NoError(t, err)

	bf, ok := unit.Operations[1].(*migrate.Backfill)
	require.True(t, ok)
	assert.Equal(t, true, bf.Set["verified"])
	assert.Equal(t, "now()", bf.SetExpr["updated_at"])
}

func TestParseUnitUnknownKind(t *testing.T) {
	_, err := ParseUnit([]byte(`
id: 3
description: bad
operations:
  - kind: rename_table
    table: accounts
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown operation kind "rename_table"`)
}

func TestParseUnitInvalid(t *testing.T) {
	_, err := ParseUnit([]byte(`
id: 0
description: missing id
operations:
  - kind: ensure_table
    table: accounts
    columns:
      - name: id
        type: bigint
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, migrate.ErrInvalidUnit))
}

func writeUnit(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadDirOrdersById(t *testing.T) {
	dir := t.TempDir()
	// file names deliberately out of id order
	writeUnit(t, dir, "002_verified.yaml", verifiedUnit)
	writeUnit(t, dir, "001_accounts.yaml", accountsUnit)
	writeUnit(t, dir, "notes.txt", "not a unit")

	units, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, int64(1), units[0].ID)
	assert.Equal(t, int64(2), units[1].ID)
}

func TestLoadDirDuplicateId(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "001_accounts.yaml", accountsUnit)
	writeUnit(t, dir, "001_again.yaml", accountsUnit)

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, migrate.ErrInvalidUnit))
	assert.Contains(t, err.Error(), "001_accounts.yaml")
	assert.Contains(t, err.Error(), "001_again.yaml")
}

func TestLoadFileNamesFileInError(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "004_broken.yaml", "id: [not, a, number]")

	_, err := LoadFile(filepath.Join(dir, "004_broken.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "004_broken.yaml")
}

func TestFilterRange(t *testing.T) {
	units := []*migrate.Unit{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}

	assert.Len(t, FilterRange(units, 0, 0), 4)
	assert.Len(t, FilterRange(units, 2, 3), 2)
	assert.Equal(t, int64(3), FilterRange(units, 3, 0)[0].ID)
	assert.Equal(t, int64(2), FilterRange(units, 0, 2)[1].ID)
}
