package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the closed set of scoring action types.
type EventType string

const (
	EventGameStarted     EventType = "GAME_STARTED"
	EventGoalScored      EventType = "GOAL_SCORED"
	EventPenaltyAssessed EventType = "PENALTY_ASSESSED"
	EventShotOnGoal      EventType = "SHOT_ON_GOAL"
	EventPeriodEnded     EventType = "PERIOD_ENDED"
	EventGameFinalized   EventType = "GAME_FINALIZED"
	EventGameCancelled   EventType = "GAME_CANCELLED"
	EventScoreCorrected  EventType = "SCORE_CORRECTED"
	EventReversal        EventType = "EVENT_REVERSAL"
)

// KnownEventType reports whether t is part of the closed enum.
func KnownEventType(t EventType) bool {
	switch t {
	case EventGameStarted, EventGoalScored, EventPenaltyAssessed, EventShotOnGoal,
		EventPeriodEnded, EventGameFinalized, EventGameCancelled, EventScoreCorrected,
		EventReversal:
		return true
	}
	return false
}

// ReversibleEventType reports whether events of type t may be undone by an
// EVENT_REVERSAL.
func ReversibleEventType(t EventType) bool {
	switch t {
	case EventGoalScored, EventPenaltyAssessed, EventShotOnGoal:
		return true
	}
	return false
}

// EventMetadata records provenance for an event.
type EventMetadata struct {
	UserID    string `json:"user_id"`
	Source    string `json:"source"`
	IPAddress string `json:"ip_address,omitempty"`
}

// SpatialCoordinates locates an event on a normalized playing surface.
type SpatialCoordinates struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zone string  `json:"zone,omitempty"`
}

// GameEvent is one immutable entry in a game's append-only action log.
// Only ReversedBy is ever written after creation.
type GameEvent struct {
	ID             string              `json:"event_id"`
	GameID         string              `json:"game_id"`
	TenantID       string              `json:"tenant_id"`
	Type           EventType           `json:"event_type"`
	OccurredAt     time.Time           `json:"occurred_at"`
	SortKey        string              `json:"sort_key"`
	Payload        json.RawMessage     `json:"payload"`
	Metadata       EventMetadata       `json:"metadata"`
	ExpiresAt      time.Time           `json:"ttl"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	ReversedBy     string              `json:"reversed_by,omitempty"`
	Coordinates    *SpatialCoordinates `json:"spatial_coordinates,omitempty"`
}

// SortKey derives the stable chronological ordering key for an event.
// Zero-padded millisecond precision keeps lexicographic order equal to
// (occurred_at, event_id) order even with duplicate timestamps.
func SortKey(occurredAt time.Time, eventID string) string {
	return fmt.Sprintf("%013d#%s", occurredAt.UTC().UnixMilli(), eventID)
}

// Payload is the tagged union of event payload variants. The discriminant is
// the event type, so the projector and validator can match exhaustively.
type Payload interface {
	EventType() EventType
}

// GameStartedPayload marks the transition from SCHEDULED to LIVE.
type GameStartedPayload struct {
	Period int `json:"period,omitempty"`
}

// GoalScoredPayload credits one goal to a team.
type GoalScoredPayload struct {
	TeamID        string `json:"team_id" validate:"required,uuid"`
	PlayerID      string `json:"player_id" validate:"required,uuid"`
	Period        int    `json:"period" validate:"required,gte=1"`
	TimeRemaining string `json:"time_remaining" validate:"required,clock"`
	AssistID      string `json:"assist_id,omitempty" validate:"omitempty,uuid"`
}

// PenaltyAssessedPayload records an infraction against a player.
type PenaltyAssessedPayload struct {
	TeamID        string `json:"team_id" validate:"required,uuid"`
	PlayerID      string `json:"player_id" validate:"required,uuid"`
	Period        int    `json:"period" validate:"required,gte=1"`
	TimeRemaining string `json:"time_remaining" validate:"required,clock"`
	Infraction    string `json:"infraction" validate:"required"`
	Minutes       int    `json:"minutes" validate:"required,gte=1"`
}

// ShotOnGoalPayload records a shot attempt.
type ShotOnGoalPayload struct {
	TeamID        string `json:"team_id" validate:"required,uuid"`
	PlayerID      string `json:"player_id" validate:"required,uuid"`
	Period        int    `json:"period" validate:"required,gte=1"`
	TimeRemaining string `json:"time_remaining" validate:"omitempty,clock"`
}

// PeriodEndedPayload closes out a period.
type PeriodEndedPayload struct {
	Period int `json:"period" validate:"required,gte=1"`
}

// GameFinalizedPayload carries the authoritative final scores. Additional
// properties are rejected at decode time. The scores are pointers so an
// absent field is distinguishable from a legitimate 0.
type GameFinalizedPayload struct {
	FinalHomeScore *int `json:"final_home_score" validate:"required,gte=0"`
	FinalAwayScore *int `json:"final_away_score" validate:"required,gte=0"`
}

// GameCancelledPayload abandons a game.
type GameCancelledPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ScoreCorrectedPayload replaces the running scores out of band. All four
// scores must be supplied explicitly.
type ScoreCorrectedPayload struct {
	OldHomeScore *int   `json:"old_home_score" validate:"required,gte=0"`
	OldAwayScore *int   `json:"old_away_score" validate:"required,gte=0"`
	NewHomeScore *int   `json:"new_home_score" validate:"required,gte=0"`
	NewAwayScore *int   `json:"new_away_score" validate:"required,gte=0"`
	Reason       string `json:"reason" validate:"required"`
}

// ReversalPayload undoes a prior reversible event.
type ReversalPayload struct {
	ReversedEventID string `json:"reversed_event_id" validate:"required,uuid"`
	Reason          string `json:"reason,omitempty"`
}

func (GameStartedPayload) EventType() EventType     { return EventGameStarted }
func (GoalScoredPayload) EventType() EventType      { return EventGoalScored }
func (PenaltyAssessedPayload) EventType() EventType { return EventPenaltyAssessed }
func (ShotOnGoalPayload) EventType() EventType      { return EventShotOnGoal }
func (PeriodEndedPayload) EventType() EventType     { return EventPeriodEnded }
func (GameFinalizedPayload) EventType() EventType   { return EventGameFinalized }
func (GameCancelledPayload) EventType() EventType   { return EventGameCancelled }
func (ScoreCorrectedPayload) EventType() EventType  { return EventScoreCorrected }
func (ReversalPayload) EventType() EventType        { return EventReversal }
