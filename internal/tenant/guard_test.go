package tenant

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leagueops/scorekeeper/internal/domain"
)

const guardTenant = "b3e2a1d0-1234-4cde-8f90-abcdefabcdef"

type fakeQuerier struct {
	rows     []Row
	affected int64
	lastSQL  string
	lastArgs []any
	calls    int
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) ([]Row, error) {
	f.calls++
	f.lastSQL = sql
	f.lastArgs = args
	return f.rows, nil
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	f.calls++
	f.lastSQL = sql
	f.lastArgs = args
	return f.affected, nil
}

func TestQueryBindsTenantAsFirstArg(t *testing.T) {
	db := &fakeQuerier{rows: []Row{{"id": "g1", "tenant_id": guardTenant}}}
	guard := NewGuard(db, slog.Default(), nil)

	rows, err := guard.Query(context.Background(), guardTenant,
		"SELECT g.id, l.tenant_id FROM games g JOIN leagues l ON l.tenant_id = $1 WHERE g.id = $2", "g1")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.Len(t, db.lastArgs, 2)
	assert.Equal(t, guardTenant, db.lastArgs[0])
	assert.Equal(t, "g1", db.lastArgs[1])
}

func TestQueryRejectsEmptyTenant(t *testing.T) {
	db := &fakeQuerier{}
	guard := NewGuard(db, slog.Default(), nil)

	_, err := guard.Query(context.Background(), "", "SELECT 1 WHERE tenant_id = $1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidTenantID, domain.CodeOf(err))
	assert.True(t, domain.IsTenantIsolation(err))
	assert.Zero(t, db.calls, "query must never reach the database")
}

func TestQueryRejectsNonUUIDTenant(t *testing.T) {
	db := &fakeQuerier{}
	guard := NewGuard(db, slog.Default(), nil)

	_, err := guard.Query(context.Background(), "42 OR 1=1", "SELECT 1 WHERE tenant_id = $1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidTenantID, domain.CodeOf(err))
	assert.Zero(t, db.calls)
}

func TestQueryRejectsMissingTenantFilter(t *testing.T) {
	db := &fakeQuerier{}
	guard := NewGuard(db, slog.Default(), nil)

	_, err := guard.Query(context.Background(), guardTenant, "SELECT id FROM games WHERE id = $2", "g1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeQueryMissingTenantFilter, domain.CodeOf(err))
	assert.Zero(t, db.calls)
}

func TestQueryDetectsCrossTenantRow(t *testing.T) {
	db := &fakeQuerier{rows: []Row{
		{"id": "g1", "tenant_id": guardTenant},
		{"id": "g2", "tenant_id": "00000000-0000-4000-8000-000000000000"},
	}}
	guard := NewGuard(db, slog.Default(), nil)

	_, err := guard.Query(context.Background(), guardTenant,
		"SELECT g.id, l.tenant_id FROM games g JOIN leagues l ON l.tenant_id = $1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeTenantIsolationViolation, domain.CodeOf(err))
	assert.True(t, domain.IsTenantIsolation(err))
}

func TestQuerySkipsRowsWithoutTenantField(t *testing.T) {
	db := &fakeQuerier{rows: []Row{{"count": int64(7)}}}
	guard := NewGuard(db, slog.Default(), nil)

	rows, err := guard.Query(context.Background(), guardTenant,
		"SELECT COUNT(*) AS count FROM games g JOIN seasons s ON s.id = g.season_id JOIN leagues l ON l.id = s.league_id WHERE l.tenant_id = $1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExecBindsTenant(t *testing.T) {
	db := &fakeQuerier{affected: 1}
	guard := NewGuard(db, slog.Default(), nil)

	affected, err := guard.Exec(context.Background(), guardTenant,
		"UPDATE games SET home_score = $2 WHERE id = $3 AND season_id IN (SELECT s.id FROM seasons s JOIN leagues l ON l.id = s.league_id WHERE l.tenant_id = $1)",
		3, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Equal(t, []any{guardTenant, 3, "g1"}, db.lastArgs)
}

func TestWithDBKeepsPolicy(t *testing.T) {
	guard := NewGuard(&fakeQuerier{}, slog.Default(), nil)
	tx := &fakeQuerier{}
	txGuard := guard.WithDB(tx)

	_, err := txGuard.Query(context.Background(), guardTenant, "SELECT 1 FROM leagues WHERE tenant_id = $1")
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)

	_, err = txGuard.Query(context.Background(), "not-a-uuid", "SELECT 1 FROM leagues WHERE tenant_id = $1")
	require.Error(t, err)
}

func TestTruncateCollapsesWhitespace(t *testing.T) {
	long := "SELECT   *\n  FROM games\n WHERE tenant_id = $1 AND " +
		"id IN ('aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa','bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb','cccccccccccccccccccccccccccccccc')"
	got := truncate(long)
	assert.NotContains(t, got, "\n")
	assert.LessOrEqual(t, len(got), truncateQueryAt+3)
}
