// Package tenant enforces tenant scoping at the data-access boundary. Every
// relational query in the scoring core is routed through the Guard, which
// lints the query shape, binds the tenant as the first parameter, and
// re-checks returned rows for cross-tenant leakage.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/leagueops/scorekeeper/internal/domain"
	"github.com/leagueops/scorekeeper/internal/metrics"
)

// Row is a single result row as an ordered field map.
type Row map[string]any

// Querier executes parameterized SQL. Implemented by the pgx pool adapter
// and by transaction-bound adapters.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

const truncateQueryAt = 120

// Guard validates and enforces tenant scoping for a Querier.
type Guard struct {
	db      Querier
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewGuard creates a guard over db.
func NewGuard(db Querier, logger *slog.Logger, m *metrics.Metrics) *Guard {
	return &Guard{db: db, logger: logger, metrics: m}
}

// WithDB returns a guard with identical policy bound to another Querier,
// typically a transaction.
func (g *Guard) WithDB(db Querier) *Guard {
	return &Guard{db: db, logger: g.logger, metrics: g.metrics}
}

// Query executes a tenant-scoped read. The tenant id is bound as $1; callers
// number their own parameters from $2.
func (g *Guard) Query(ctx context.Context, tenantID, query string, args ...any) ([]Row, error) {
	if err := g.admit(tenantID, query); err != nil {
		return nil, err
	}
	rows, err := g.db.Query(ctx, query, prepend(tenantID, args)...)
	if err != nil {
		return nil, err
	}
	if err := g.verifyRows(tenantID, query, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Exec executes a tenant-scoped write and returns the affected row count.
func (g *Guard) Exec(ctx context.Context, tenantID, query string, args ...any) (int64, error) {
	if err := g.admit(tenantID, query); err != nil {
		return 0, err
	}
	return g.db.Exec(ctx, query, prepend(tenantID, args)...)
}

// admit rejects malformed tenant ids and queries that do not reference a
// tenant_id condition. The lint is a static check on query shape, catching
// the common "forgot to scope" class of bug, not a proof of correctness.
func (g *Guard) admit(tenantID, query string) error {
	if tenantID == "" {
		return domain.NewTenantIsolation(domain.CodeInvalidTenantID, "tenant id is empty")
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		return domain.NewTenantIsolation(domain.CodeInvalidTenantID,
			"tenant id %q is not a UUID", tenantID)
	}
	if !strings.Contains(strings.ToLower(query), "tenant_id") {
		g.logger.Error("query without tenant filter blocked",
			"severity", "HIGH",
			"tenant_id", tenantID,
			"query", truncate(query),
		)
		return domain.NewTenantIsolation(domain.CodeQueryMissingTenantFilter,
			"query does not reference tenant_id")
	}
	return nil
}

// verifyRows is the defense-in-depth pass: any returned row carrying a
// tenant_id field must match the requesting tenant. Rows without the field
// (aggregates) are not checked.
func (g *Guard) verifyRows(tenantID, query string, rows []Row) error {
	for _, row := range rows {
		raw, ok := row["tenant_id"]
		if !ok {
			continue
		}
		if rowTenant := fmt.Sprint(raw); rowTenant != tenantID {
			g.logger.Error("cross-tenant row detected in result set",
				"severity", "HIGH",
				"expected_tenant", tenantID,
				"actual_tenant", rowTenant,
				"query", truncate(query),
			)
			if g.metrics != nil {
				g.metrics.CrossTenantAttempts.WithLabelValues(tenantID).Inc()
			}
			return domain.NewTenantIsolation(domain.CodeTenantIsolationViolation,
				"result row belongs to another tenant")
		}
	}
	return nil
}

func prepend(tenantID string, args []any) []any {
	return append([]any{tenantID}, args...)
}

func truncate(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	if len(query) > truncateQueryAt {
		return query[:truncateQueryAt] + "..."
	}
	return query
}
