package domain

import "time"

// GameStatus is the lifecycle state of a game aggregate. Transitions are
// monotonic except through explicit correction paths.
type GameStatus string

const (
	GameScheduled GameStatus = "SCHEDULED"
	GameLive      GameStatus = "LIVE"
	GameFinal     GameStatus = "FINAL"
	GamePostponed GameStatus = "POSTPONED"
	GameCancelled GameStatus = "CANCELLED"
)

// Game is the single authoritative mutable record for a game. Its tenant is
// reachable only transitively through season and league.
type Game struct {
	ID          string     `json:"id"`
	SeasonID    string     `json:"season_id"`
	HomeTeamID  string     `json:"home_team_id"`
	AwayTeamID  string     `json:"away_team_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      GameStatus `json:"status"`
	HomeScore   int        `json:"home_score"`
	AwayScore   int        `json:"away_score"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// League is the tenant-owned root of the competition hierarchy.
type League struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Sport     string    `json:"sport"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Season groups games within a league.
type Season struct {
	ID       string    `json:"id"`
	LeagueID string    `json:"league_id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Team belongs to a league and accrues standings per season.
type Team struct {
	ID       string `json:"id"`
	LeagueID string `json:"league_id"`
	Name     string `json:"name"`
}
