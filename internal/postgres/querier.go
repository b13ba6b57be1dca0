package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leagueops/scorekeeper/internal/domain"
	"github.com/leagueops/scorekeeper/internal/tenant"
)

// poolQuerier adapts a pgx pool to the guard's Querier contract, returning
// rows as ordered field maps.
type poolQuerier struct {
	pool *pgxpool.Pool
}

func (q poolQuerier) Query(ctx context.Context, sql string, args ...any) ([]tenant.Row, error) {
	rows, err := q.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, "querying database")
	}
	return collectRows(rows)
}

func (q poolQuerier) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := q.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classify(err, "executing statement")
	}
	return tag.RowsAffected(), nil
}

// txQuerier adapts a transaction to the same contract.
type txQuerier struct {
	tx pgx.Tx
}

func (q txQuerier) Query(ctx context.Context, sql string, args ...any) ([]tenant.Row, error) {
	rows, err := q.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, "querying database")
	}
	return collectRows(rows)
}

func (q txQuerier) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := q.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classify(err, "executing statement")
	}
	return tag.RowsAffected(), nil
}

func collectRows(rows pgx.Rows) ([]tenant.Row, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []tenant.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classify(err, "reading row")
		}
		row := make(tenant.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterating rows")
	}
	return out, nil
}

// classify maps driver failures to the retryable unavailable kind. Store
// unreachability must never masquerade as not-found.
func classify(err error, action string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewUnavailable(err, "%s timed out", action)
	}
	return domain.NewUnavailable(err, "%s", action)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}
