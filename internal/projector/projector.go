// Package projector folds accepted events into the authoritative game
// aggregate. Application is deterministic per event type and executes under
// a row lock so concurrent writers to the same game serialize.
package projector

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/leagueops/scorekeeper/internal/domain"
)

// GameStore is the locked read-modify-write surface over game aggregates.
type GameStore interface {
	GetGame(ctx context.Context, tenantID, gameID string) (*domain.Game, error)
	WithGameLock(ctx context.Context, tenantID, gameID string, mutate func(*domain.Game) error) (*domain.Game, error)
}

// EventIndex resolves stored events for reversal preconditions and records
// the reversed_by back-reference.
type EventIndex interface {
	GetByID(ctx context.Context, tenantID, eventID string) (*domain.GameEvent, error)
	MarkReversed(ctx context.Context, tenantID, eventID, reversalEventID string) error
}

// Projector applies events to game aggregates.
type Projector struct {
	games  GameStore
	events EventIndex
	logger *slog.Logger
}

// New creates a projector.
func New(games GameStore, events EventIndex, logger *slog.Logger) *Projector {
	return &Projector{games: games, events: events, logger: logger}
}

// Apply projects one event onto its game and returns the updated aggregate.
// Events against a FINAL game are rejected, reversals included: correcting a
// finalized game is explicitly unsupported.
func (p *Projector) Apply(ctx context.Context, event *domain.GameEvent, payload domain.Payload) (*domain.Game, error) {
	if reversal, ok := payload.(domain.ReversalPayload); ok {
		return p.applyReversal(ctx, event, reversal)
	}

	return p.games.WithGameLock(ctx, event.TenantID, event.GameID, func(game *domain.Game) error {
		if game.Status == domain.GameFinal {
			return domain.NewConflict(domain.CodeGameAlreadyFinalized,
				"game %s is already finalized", game.ID)
		}

		switch pl := payload.(type) {
		case domain.GameStartedPayload:
			// Status transitions are monotonic: a cancelled game cannot be
			// restarted by a stray GAME_STARTED.
			if game.Status != domain.GameScheduled && game.Status != domain.GamePostponed {
				return domain.NewConflict(domain.CodeInvalidStatusTransition,
					"game %s cannot start from status %s", game.ID, game.Status)
			}
			game.Status = domain.GameLive

		case domain.GoalScoredPayload:
			return creditGoal(game, pl.TeamID, +1)

		case domain.PenaltyAssessedPayload, domain.ShotOnGoalPayload, domain.PeriodEndedPayload:
			// Audit-only events: the aggregate does not track penalty or shot
			// counters, so application touches updated_at and nothing else.

		case domain.ScoreCorrectedPayload:
			game.HomeScore = *pl.NewHomeScore
			game.AwayScore = *pl.NewAwayScore

		case domain.GameFinalizedPayload:
			game.Status = domain.GameFinal
			game.HomeScore = *pl.FinalHomeScore
			game.AwayScore = *pl.FinalAwayScore

		case domain.GameCancelledPayload:
			game.Status = domain.GameCancelled

		default:
			return domain.NewValidation(domain.CodeUnknownEventType,
				"no projection for event type %s", event.Type)
		}
		return nil
	})
}

// applyReversal undoes a prior reversible event. Each precondition fails
// with its own error: the referenced event must exist for the game, must not
// be reversed already, and must be of a reversible type. The reversed_by
// claim is taken inside the game lock, after the state mutation has
// succeeded: a failed mutation leaves the original event unclaimed, and a
// racing second reversal serializes on the lock and is rejected by the
// claim conflict before its transaction commits.
func (p *Projector) applyReversal(ctx context.Context, event *domain.GameEvent, reversal domain.ReversalPayload) (*domain.Game, error) {
	original, err := p.events.GetByID(ctx, event.TenantID, reversal.ReversedEventID)
	if err != nil {
		return nil, err
	}
	if original.GameID != event.GameID {
		return nil, domain.NewNotFound(domain.CodeEventNotFound,
			"event %s not found for game %s", reversal.ReversedEventID, event.GameID)
	}
	if original.ReversedBy != "" && original.ReversedBy != event.ID {
		return nil, domain.NewConflict(domain.CodeEventAlreadyReversed,
			"event %s is already reversed", original.ID)
	}
	if !domain.ReversibleEventType(original.Type) {
		return nil, domain.NewConflict(domain.CodeEventNotReversible,
			"event type %s is not reversible", original.Type)
	}

	game, err := p.games.GetGame(ctx, event.TenantID, event.GameID)
	if err != nil {
		return nil, err
	}
	if game.Status == domain.GameFinal {
		return nil, domain.NewConflict(domain.CodeGameAlreadyFinalized,
			"game %s is already finalized", game.ID)
	}
	if original.Type == domain.EventGoalScored {
		if err := checkGoalFloor(game, original); err != nil {
			return nil, err
		}
	}

	return p.games.WithGameLock(ctx, event.TenantID, event.GameID, func(game *domain.Game) error {
		if game.Status == domain.GameFinal {
			return domain.NewConflict(domain.CodeGameAlreadyFinalized,
				"game %s is already finalized", game.ID)
		}
		switch original.Type {
		case domain.EventGoalScored:
			var goal domain.GoalScoredPayload
			if err := json.Unmarshal(original.Payload, &goal); err != nil {
				return domain.NewValidation(domain.CodeInvalidPayload,
					"stored goal payload is undecodable")
			}
			if err := creditGoal(game, goal.TeamID, -1); err != nil {
				return err
			}
		default:
			// Penalty and shot reversals touch updated_at only; this is a
			// placeholder until the aggregate tracks those counters, and the
			// reversal event itself remains in the log as the audit record.
		}
		// Claim last so an error above leaves the original event unclaimed
		// and a later reversal attempt is not locked out.
		return p.events.MarkReversed(ctx, event.TenantID, original.ID, event.ID)
	})
}

func creditGoal(game *domain.Game, teamID string, delta int) error {
	switch teamID {
	case game.HomeTeamID:
		if game.HomeScore+delta < 0 {
			return domain.NewConflict(domain.CodeScoreFloor,
				"Cannot reverse goal: home score is already 0")
		}
		game.HomeScore += delta
	case game.AwayTeamID:
		if game.AwayScore+delta < 0 {
			return domain.NewConflict(domain.CodeScoreFloor,
				"Cannot reverse goal: away score is already 0")
		}
		game.AwayScore += delta
	default:
		return domain.NewValidation(domain.CodeInvalidPayload,
			"team %s is not playing in game %s", teamID, game.ID).
			WithField("team_id", "not a participant in this game")
	}
	return nil
}

func checkGoalFloor(game *domain.Game, original *domain.GameEvent) error {
	var goal domain.GoalScoredPayload
	if err := json.Unmarshal(original.Payload, &goal); err != nil {
		return domain.NewValidation(domain.CodeInvalidPayload, "stored goal payload is undecodable")
	}
	switch goal.TeamID {
	case game.HomeTeamID:
		if game.HomeScore == 0 {
			return domain.NewConflict(domain.CodeScoreFloor,
				"Cannot reverse goal: home score is already 0")
		}
	case game.AwayTeamID:
		if game.AwayScore == 0 {
			return domain.NewConflict(domain.CodeScoreFloor,
				"Cannot reverse goal: away score is already 0")
		}
	}
	return nil
}
