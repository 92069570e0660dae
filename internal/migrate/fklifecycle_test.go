package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/introspect"
)

// referencedSnapshot builds accounts(id text) with two tables referencing
// accounts.id and accounts itself referencing owners.id.
func referencedSnapshot() *introspect.Snapshot {
	snap := snapshotWith(accountsTable("text"))
	snap.Tables["accounts"].Constraints = append(snap.Tables["accounts"].Constraints,
		&introspect.ConstraintInfo{
			Name: "sessions_account_id_fkey", Kind: introspect.ConstraintForeignKey,
			Table: "sessions", Column: "account_id", RefTable: "accounts", RefColumn: "id", OnDelete: "CASCADE",
		},
		&introspect.ConstraintInfo{
			Name: "audit_account_id_fkey", Kind: introspect.ConstraintForeignKey,
			Table: "audit", Column: "account_id", RefTable: "accounts", RefColumn: "id", OnDelete: "NO ACTION",
		},
	)
	return snap
}

func TestDestructiveAlterBracketsForeignKeys(t *testing.T) {
	planner := NewPlanner()
	unit := &Unit{ID: 10, DestructiveAllowed: true, Operations: []Operation{
		&AlterColumnType{Table: "accounts", Column: "id", NewType: "uuid"},
	}}

	plan, err := planner.Plan(referencedSnapshot(), unit)
	require.NoError(t, err)

	var kinds []Kind
	for _, s := range plan.Steps {
		kinds = append(kinds, s.Op.OpKind())
	}
	require.Equal(t, []Kind{
		KindDropForeignKey,
		KindDropForeignKey,
		KindAlterColumnType, // the destructive change itself
		KindAlterColumnType, // audit.account_id follows
		KindAlterColumnType, // sessions.account_id follows
		KindEnsureForeignKey,
		KindEnsureForeignKey,
	}, kinds)

	// dependents drop in sorted table order before the change
	drop0 := plan.Steps[0].Op.(*DropForeignKey)
	drop1 := plan.Steps[1].Op.(*DropForeignKey)
	assert.Equal(t, "audit_account_id_fkey", drop0.ConstraintName)
	assert.Equal(t, "sessions_account_id_fkey", drop1.ConstraintName)

	// recreations reverse the drop order and keep the original definition
	re0 := plan.Steps[5].Op.(*EnsureForeignKey)
	re1 := plan.Steps[6].Op.(*EnsureForeignKey)
	assert.Equal(t, "sessions_account_id_fkey", re0.Name)
	assert.Equal(t, "CASCADE", re0.OnDelete)
	assert.Equal(t, "audit_account_id_fkey", re1.Name)
	assert.Contains(t, plan.Steps[6].Statements[0].SQL, `ADD CONSTRAINT "audit_account_id_fkey"`)
	assert.NotContains(t, plan.Steps[6].Statements[0].SQL, "ON DELETE NO ACTION")

	// referencing columns convert to the same target type
	follow := plan.Steps[3].Op.(*AlterColumnType)
	assert.Equal(t, "audit", follow.Table)
	assert.Equal(t, "uuid", follow.NewType)

	assert.True(t, plan.HasDestructive())
}

func TestDestructiveAlterWithoutDependentsIsUnbracketed(t *testing.T) {
	planner := NewPlanner()
	unit := &Unit{ID: 11, DestructiveAllowed: true, Operations: []Operation{
		&AlterColumnType{Table: "accounts", Column: "kind", NewType: "uuid"},
	}}

	plan, err := planner.Plan(snapshotWith(accountsTable("text")), unit)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, Destructive, plan.Steps[0].Class)
}

func TestRecreationsPrecedeTrailingBackfills(t *testing.T) {
	planner := NewPlanner()
	unit := &Unit{ID: 12, DestructiveAllowed: true, Operations: []Operation{
		&AlterColumnType{Table: "accounts", Column: "id", NewType: "uuid"},
		&Backfill{Table: "accounts", Predicate: "kind IS NULL", Set: map[string]interface{}{"kind": "basic"}},
	}}

	plan, err := planner.Plan(referencedSnapshot(), unit)
	require.NoError(t, err)

	last := plan.Steps[len(plan.Steps)-1]
	assert.Equal(t, KindBackfill, last.Op.OpKind())

	secondToLast := plan.Steps[len(plan.Steps)-2]
	assert.Equal(t, KindEnsureForeignKey, secondToLast.Op.OpKind())
}

func TestSafeAlterLeavesForeignKeysAlone(t *testing.T) {
	planner := NewPlanner()
	unit := &Unit{ID: 13, Operations: []Operation{
		&AlterColumnType{Table: "accounts", Column: "id", NewType: "uuid", ConversionExpr: "id::uuid"},
	}}

	plan, err := planner.Plan(referencedSnapshot(), unit)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, Apply, plan.Steps[0].Class)
}
