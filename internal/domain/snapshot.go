package domain

import (
	"encoding/json"
	"time"
)

// SnapshotVersion identifies the snapshot wire format.
const SnapshotVersion = 1

// SnapshotStatus is the public status vocabulary exposed to clients.
type SnapshotStatus string

const (
	SnapshotScheduled  SnapshotStatus = "scheduled"
	SnapshotInProgress SnapshotStatus = "in_progress"
	SnapshotFinal      SnapshotStatus = "final"
	SnapshotPostponed  SnapshotStatus = "postponed"
)

// PublicStatus maps an aggregate status to the client-facing vocabulary.
func PublicStatus(s GameStatus) SnapshotStatus {
	switch s {
	case GameLive:
		return SnapshotInProgress
	case GameFinal:
		return SnapshotFinal
	case GamePostponed, GameCancelled:
		return SnapshotPostponed
	default:
		return SnapshotScheduled
	}
}

// SnapshotEvent is the trimmed event view embedded in a snapshot.
type SnapshotEvent struct {
	EventID    string          `json:"event_id"`
	Type       EventType       `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReversedBy string          `json:"reversed_by,omitempty"`
}

// GameSnapshot is an ephemeral, versioned point-in-time view of a game,
// composed from the aggregate and its most recent events. It is never
// persisted.
type GameSnapshot struct {
	GameID       string          `json:"game_id"`
	HomeScore    int             `json:"home_score"`
	AwayScore    int             `json:"away_score"`
	Period       int             `json:"period"`
	ClockSeconds int             `json:"clock_seconds"`
	Status       SnapshotStatus  `json:"status"`
	RecentEvents []SnapshotEvent `json:"recent_events"`
	Version      int             `json:"snapshot_version"`
	GeneratedAt  time.Time       `json:"generated_at"`
}
