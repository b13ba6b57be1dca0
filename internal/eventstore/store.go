// Package eventstore is the durable, append-only log of game actions,
// backed by Redis. Events are keyed per (tenant, game) in a sorted set
// ordered by (occurred_at, event_id) and expire 90 days after creation.
package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leagueops/scorekeeper/internal/config"
	"github.com/leagueops/scorekeeper/internal/domain"
	"github.com/leagueops/scorekeeper/internal/validate"
)

// Store provides Redis-based event log operations.
type Store struct {
	client        *redis.Client
	logger        *slog.Logger
	ttl           time.Duration
	appendTimeout time.Duration
	now           func() time.Time
}

// NewStore creates a new event store on its own Redis client.
func NewStore(cfg *config.RedisConfig, storeCfg *config.EventStoreConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Store{
		client:        client,
		logger:        logger,
		ttl:           storeCfg.EventTTL,
		appendTimeout: storeCfg.AppendTimeout,
		now:           time.Now,
	}, nil
}

// NewStoreWithClient wraps an existing client; used by tests and by
// components sharing the connection pool.
func NewStoreWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{client: client, logger: logger, ttl: ttl, now: time.Now}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client.
func (s *Store) Client() *redis.Client {
	return s.client
}

// eventKey returns the Redis key holding one event document.
func (s *Store) eventKey(tenantID, eventID string) string {
	return fmt.Sprintf("event:%s:%s", tenantID, eventID)
}

// gameKey returns the Redis key for a game's chronological event index.
func (s *Store) gameKey(tenantID, gameID string) string {
	return fmt.Sprintf("game:%s:%s:events", tenantID, gameID)
}

// idemKey returns the Redis key reserving an idempotency key per tenant.
func (s *Store) idemKey(tenantID, key string) string {
	return fmt.Sprintf("idem:%s:%s", tenantID, key)
}

// Append stores an event, assigning id and sort key. When the event carries
// an idempotency key that was already used within the tenant, the original
// event is returned with duplicate=true and nothing is written.
func (s *Store) Append(ctx context.Context, event *domain.GameEvent) (*domain.GameEvent, bool, error) {
	if s.appendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.appendTimeout)
		defer cancel()
	}

	now := s.now().UTC()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	if err := validate.OccurredAt(event.OccurredAt, now); err != nil {
		return nil, false, err
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.SortKey = domain.SortKey(event.OccurredAt, event.ID)
	event.ExpiresAt = now.Add(s.ttl)

	if event.IdempotencyKey != "" {
		// Conditional insert: the reservation and the duplicate check are one
		// atomic SETNX, so a retried request cannot race a second event in.
		reserved, err := s.client.SetNX(ctx, s.idemKey(event.TenantID, event.IdempotencyKey),
			event.ID, s.ttl).Result()
		if err != nil {
			return nil, false, domain.NewUnavailable(err, "reserving idempotency key")
		}
		if !reserved {
			originalID, err := s.client.Get(ctx, s.idemKey(event.TenantID, event.IdempotencyKey)).Result()
			if err != nil {
				return nil, false, domain.NewUnavailable(err, "resolving idempotency key")
			}
			original, err := s.GetByID(ctx, event.TenantID, originalID)
			if domain.IsNotFound(err) {
				// Orphaned reservation: the document write behind it never
				// landed. Release the key so this retry path heals instead of
				// resolving to a missing event forever.
				s.releaseIdempotencyKey(ctx, event.TenantID, event.IdempotencyKey)
				return nil, false, domain.NewUnavailable(err,
					"idempotency reservation had no stored event, retry")
			}
			if err != nil {
				return nil, false, err
			}
			return original, true, nil
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling event: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.eventKey(event.TenantID, event.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.gameKey(event.TenantID, event.GameID), redis.Z{
		Score:  float64(event.OccurredAt.UTC().UnixMilli()),
		Member: event.ID,
	})
	pipe.Expire(ctx, s.gameKey(event.TenantID, event.GameID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		if event.IdempotencyKey != "" {
			// The reservation points at an event that was never stored; drop
			// it so a retry with the same key takes the write path again.
			s.releaseIdempotencyKey(ctx, event.TenantID, event.IdempotencyKey)
		}
		return nil, false, domain.NewUnavailable(err, "appending event")
	}

	return event, false, nil
}

// releaseIdempotencyKey drops a reservation whose event write failed. Runs on
// a detached context since the original may already be expired, which is the
// usual reason the write failed.
func (s *Store) releaseIdempotencyKey(ctx context.Context, tenantID, key string) {
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.client.Del(cleanup, s.idemKey(tenantID, key)).Err(); err != nil {
		s.logger.Error("failed to release idempotency reservation",
			"tenant_id", tenantID, "idempotency_key", key, "error", err)
	}
}

// ListByGame returns all stored events for a game in (occurred_at, event_id)
// order. Index entries whose documents have expired are skipped.
func (s *Store) ListByGame(ctx context.Context, tenantID, gameID string) ([]domain.GameEvent, error) {
	ids, err := s.client.ZRange(ctx, s.gameKey(tenantID, gameID), 0, -1).Result()
	if err != nil {
		return nil, domain.NewUnavailable(err, "listing game events")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.eventKey(tenantID, id)
	}
	docs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.NewUnavailable(err, "loading game events")
	}

	events := make([]domain.GameEvent, 0, len(docs))
	for i, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			continue // expired document, index entry pruned by the sweeper
		}
		var event domain.GameEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			s.logger.Warn("skipping undecodable event", "event_id", ids[i], "error", err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// GetByID loads a single event within the tenant.
func (s *Store) GetByID(ctx context.Context, tenantID, eventID string) (*domain.GameEvent, error) {
	raw, err := s.client.Get(ctx, s.eventKey(tenantID, eventID)).Result()
	if err == redis.Nil {
		return nil, domain.NewNotFound(domain.CodeEventNotFound, "event %s not found", eventID)
	}
	if err != nil {
		return nil, domain.NewUnavailable(err, "loading event")
	}
	var event domain.GameEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return nil, fmt.Errorf("unmarshaling event: %w", err)
	}
	return &event, nil
}

// markReversedScript sets the reversed_by back-reference exactly once.
// Calling again with the same reversal id is a no-op; a different id is a
// conflict.
var markReversedScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 'not_found'
end
local event = cjson.decode(raw)
local current = event['reversed_by']
if current == nil or current == '' then
  event['reversed_by'] = ARGV[1]
  local ttl = redis.call('TTL', KEYS[1])
  if ttl > 0 then
    redis.call('SET', KEYS[1], cjson.encode(event), 'EX', ttl)
  else
    redis.call('SET', KEYS[1], cjson.encode(event))
  end
  return 'ok'
elseif current == ARGV[1] then
  return 'ok'
else
  return 'conflict'
end
`)

// MarkReversed records that reversalEventID reversed eventID.
func (s *Store) MarkReversed(ctx context.Context, tenantID, eventID, reversalEventID string) error {
	result, err := markReversedScript.Run(ctx, s.client,
		[]string{s.eventKey(tenantID, eventID)}, reversalEventID).Text()
	if err != nil {
		return domain.NewUnavailable(err, "marking event reversed")
	}
	switch result {
	case "ok":
		return nil
	case "not_found":
		return domain.NewNotFound(domain.CodeEventNotFound, "event %s not found", eventID)
	default:
		return domain.NewConflict(domain.CodeEventAlreadyReversed,
			"event %s is already reversed", eventID)
	}
}

// CompactGameIndexes removes index entries whose event documents have
// expired. Called by the maintenance worker.
func (s *Store) CompactGameIndexes(ctx context.Context) (int, error) {
	var removed int
	iter := s.client.Scan(ctx, 0, "game:*:events", 256).Iterator()
	for iter.Next(ctx) {
		gameKey := iter.Val()
		ids, err := s.client.ZRange(ctx, gameKey, 0, -1).Result()
		if err != nil {
			return removed, domain.NewUnavailable(err, "scanning game index")
		}
		for _, id := range ids {
			tenantID := tenantFromGameKey(gameKey)
			exists, err := s.client.Exists(ctx, s.eventKey(tenantID, id)).Result()
			if err != nil {
				return removed, domain.NewUnavailable(err, "checking event existence")
			}
			if exists == 0 {
				if err := s.client.ZRem(ctx, gameKey, id).Err(); err != nil {
					return removed, domain.NewUnavailable(err, "pruning game index")
				}
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, domain.NewUnavailable(err, "scanning game indexes")
	}
	return removed, nil
}

// tenantFromGameKey extracts the tenant segment of game:{tenant}:{game}:events.
func tenantFromGameKey(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) >= 4 {
		return parts[1]
	}
	return ""
}
