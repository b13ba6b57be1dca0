// Package broadcast distributes game snapshots to live subscribers.
// Connection records are ephemeral and self-expiring; delivery is
// best-effort per connection and never fails the triggering write.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/leagueops/scorekeeper/internal/domain"
)

// Registry tracks live subscriptions in Redis, indexed for lookup by
// (game, tenant).
type Registry struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRegistry creates a connection registry on an existing Redis client.
func NewRegistry(client *redis.Client, logger *slog.Logger) *Registry {
	return &Registry{client: client, logger: logger}
}

// connKey returns the Redis key for one connection record.
func (r *Registry) connKey(tenantID, connectionID string) string {
	return fmt.Sprintf("conn:%s:%s", tenantID, connectionID)
}

// gameConnsKey returns the Redis key for a game's subscriber index.
func (r *Registry) gameConnsKey(tenantID, gameID string) string {
	return fmt.Sprintf("conns:%s:%s", tenantID, gameID)
}

// Register records a subscription. The record expires with ConnectionTTL
// even if the transport never reports a disconnect.
func (r *Registry) Register(ctx context.Context, conn domain.Connection) error {
	data, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("marshaling connection: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.connKey(conn.TenantID, conn.ID), data, domain.ConnectionTTL)
	pipe.SAdd(ctx, r.gameConnsKey(conn.TenantID, conn.GameID), conn.ID)
	pipe.Expire(ctx, r.gameConnsKey(conn.TenantID, conn.GameID), domain.ConnectionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewUnavailable(err, "registering connection")
	}
	return nil
}

// Unregister removes a subscription on disconnect.
func (r *Registry) Unregister(ctx context.Context, tenantID, gameID, connectionID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.connKey(tenantID, connectionID))
	pipe.SRem(ctx, r.gameConnsKey(tenantID, gameID), connectionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewUnavailable(err, "unregistering connection")
	}
	return nil
}

// ListByGame resolves the live connections for (game, tenant). Index
// members whose records expired are pruned as they are found.
func (r *Registry) ListByGame(ctx context.Context, tenantID, gameID string) ([]domain.Connection, error) {
	ids, err := r.client.SMembers(ctx, r.gameConnsKey(tenantID, gameID)).Result()
	if err != nil {
		return nil, domain.NewUnavailable(err, "listing game connections")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.connKey(tenantID, id)
	}
	docs, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.NewUnavailable(err, "loading connections")
	}

	conns := make([]domain.Connection, 0, len(docs))
	for i, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			r.client.SRem(ctx, r.gameConnsKey(tenantID, gameID), ids[i])
			continue
		}
		var conn domain.Connection
		if err := json.Unmarshal([]byte(raw), &conn); err != nil {
			r.logger.Warn("skipping undecodable connection record", "connection_id", ids[i], "error", err)
			continue
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

// Sweep prunes subscriber index members whose connection records have
// expired. Returns the number of members removed.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	var removed int
	iter := r.client.Scan(ctx, 0, "conns:*", 256).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		tenantID := tenantFromConnsKey(setKey)
		ids, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return removed, domain.NewUnavailable(err, "scanning subscriber index")
		}
		for _, id := range ids {
			exists, err := r.client.Exists(ctx, r.connKey(tenantID, id)).Result()
			if err != nil {
				return removed, domain.NewUnavailable(err, "checking connection existence")
			}
			if exists == 0 {
				if err := r.client.SRem(ctx, setKey, id).Err(); err != nil {
					return removed, domain.NewUnavailable(err, "pruning subscriber index")
				}
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, domain.NewUnavailable(err, "scanning subscriber indexes")
	}
	return removed, nil
}

// tenantFromConnsKey extracts the tenant segment of conns:{tenant}:{game}.
func tenantFromConnsKey(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) >= 3 {
		return parts[1]
	}
	return ""
}

// Touch extends a connection's TTL, called on transport keepalive.
func (r *Registry) Touch(ctx context.Context, tenantID, connectionID string) error {
	if err := r.client.Expire(ctx, r.connKey(tenantID, connectionID), domain.ConnectionTTL).Err(); err != nil {
		return domain.NewUnavailable(err, "touching connection")
	}
	return nil
}
