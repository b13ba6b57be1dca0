// Package scoring orchestrates the write path: validate the action, append
// it to the event store (idempotently), project it onto the game aggregate,
// recalculate standings on finalization, then snapshot and broadcast.
package scoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/leagueops/scorekeeper/internal/broadcast"
	"github.com/leagueops/scorekeeper/internal/domain"
	"github.com/leagueops/scorekeeper/internal/metrics"
	"github.com/leagueops/scorekeeper/internal/validate"
)

// EventStore is the append surface of the event log.
type EventStore interface {
	Append(ctx context.Context, event *domain.GameEvent) (*domain.GameEvent, bool, error)
	ListByGame(ctx context.Context, tenantID, gameID string) ([]domain.GameEvent, error)
}

// Projector applies an accepted event to its game aggregate.
type Projector interface {
	Apply(ctx context.Context, event *domain.GameEvent, payload domain.Payload) (*domain.Game, error)
}

// StandingsEngine recomputes a season's league table.
type StandingsEngine interface {
	Recalculate(ctx context.Context, tenantID, seasonID string) error
}

// SnapshotGenerator composes client-consumable game views.
type SnapshotGenerator interface {
	Generate(ctx context.Context, tenantID, gameID string) (*domain.GameSnapshot, error)
	FromGame(ctx context.Context, tenantID string, game *domain.Game) (*domain.GameSnapshot, error)
}

// Broadcaster fans a snapshot out to a game's subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, tenantID, gameID string, snap *domain.GameSnapshot, messageType string)
}

// ActionRequest is one inbound scoring action.
type ActionRequest struct {
	GameID         string                     `json:"game_id"`
	Type           domain.EventType           `json:"event_type"`
	Payload        json.RawMessage            `json:"payload"`
	OccurredAt     time.Time                  `json:"occurred_at,omitempty"`
	IdempotencyKey string                     `json:"idempotency_key,omitempty"`
	Source         string                     `json:"source,omitempty"`
	IPAddress      string                     `json:"-"`
	Coordinates    *domain.SpatialCoordinates `json:"spatial_coordinates,omitempty"`
}

// Result is the outcome of a submitted action. Duplicate submissions (same
// idempotency key) are not errors: the original event returns with a fresh
// snapshot, making the write path safe to retry blindly.
type Result struct {
	Event     *domain.GameEvent    `json:"event"`
	Snapshot  *domain.GameSnapshot `json:"snapshot"`
	Duplicate bool                 `json:"duplicate"`
}

// Service wires the pipeline together.
type Service struct {
	store      EventStore
	projector  Projector
	standings  StandingsEngine
	snapshots  SnapshotGenerator
	dispatcher Broadcaster
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewService creates the scoring service.
func NewService(
	store EventStore,
	projector Projector,
	standings StandingsEngine,
	snapshots SnapshotGenerator,
	dispatcher Broadcaster,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		store:      store,
		projector:  projector,
		standings:  standings,
		snapshots:  snapshots,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    m,
	}
}

// SubmitAction runs one scoring action through the full pipeline.
func (s *Service) SubmitAction(ctx context.Context, auth domain.AuthContext, req ActionRequest) (*Result, error) {
	payload, err := validate.Payload(req.Type, req.Payload)
	if err != nil {
		s.reject(req.Type, err)
		return nil, err
	}
	if err := validate.Coordinates(req.Coordinates); err != nil {
		s.reject(req.Type, err)
		return nil, err
	}

	event := &domain.GameEvent{
		GameID:     req.GameID,
		TenantID:   auth.TenantID,
		Type:       req.Type,
		OccurredAt: req.OccurredAt,
		Payload:    req.Payload,
		Metadata: domain.EventMetadata{
			UserID:    auth.UserID,
			Source:    req.Source,
			IPAddress: req.IPAddress,
		},
		IdempotencyKey: req.IdempotencyKey,
		Coordinates:    req.Coordinates,
	}
	if len(event.Payload) == 0 {
		event.Payload = json.RawMessage(`{}`)
	}

	stored, duplicate, err := s.store.Append(ctx, event)
	if err != nil {
		s.reject(req.Type, err)
		return nil, err
	}
	if duplicate {
		if s.metrics != nil {
			s.metrics.DuplicateSubmissions.Inc()
		}
		snap, err := s.snapshots.Generate(ctx, auth.TenantID, req.GameID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("duplicate submission short-circuited",
			"game_id", req.GameID,
			"idempotency_key", req.IdempotencyKey,
			"event_id", stored.ID,
		)
		return &Result{Event: stored, Snapshot: snap, Duplicate: true}, nil
	}

	game, err := s.projector.Apply(ctx, stored, payload)
	if err != nil {
		s.reject(req.Type, err)
		return nil, err
	}

	messageType := broadcastType(req.Type)
	if req.Type == domain.EventGameFinalized {
		// Standings are derived synchronously within the finalizing operation.
		if err := s.standings.Recalculate(ctx, auth.TenantID, game.SeasonID); err != nil {
			return nil, err
		}
	}

	snap, err := s.snapshots.FromGame(ctx, auth.TenantID, game)
	if err != nil {
		return nil, err
	}

	s.dispatcher.Broadcast(ctx, auth.TenantID, game.ID, snap, messageType)

	if s.metrics != nil {
		s.metrics.EventsAccepted.WithLabelValues(string(req.Type)).Inc()
	}
	return &Result{Event: stored, Snapshot: snap}, nil
}

// GetSnapshot returns the current view of a game.
func (s *Service) GetSnapshot(ctx context.Context, auth domain.AuthContext, gameID string) (*domain.GameSnapshot, error) {
	return s.snapshots.Generate(ctx, auth.TenantID, gameID)
}

// ListEvents returns a game's full stored history in chronological order.
func (s *Service) ListEvents(ctx context.Context, auth domain.AuthContext, gameID string) ([]domain.GameEvent, error) {
	return s.store.ListByGame(ctx, auth.TenantID, gameID)
}

func (s *Service) reject(eventType domain.EventType, err error) {
	if s.metrics != nil {
		code := domain.CodeOf(err)
		if code == "" {
			code = "INTERNAL"
		}
		s.metrics.EventsRejected.WithLabelValues(string(eventType), code).Inc()
	}
}

func broadcastType(t domain.EventType) string {
	if t == domain.EventGameFinalized {
		return broadcast.MessageTypeFinalized
	}
	return broadcast.MessageTypeSnapshot
}
