package domain

import "time"

// TeamStanding is one derived league-table row per (season, team). Rows are
// recomputed wholesale on every finalization, never patched incrementally.
type TeamStanding struct {
	SeasonID         string    `json:"season_id"`
	TeamID           string    `json:"team_id"`
	Wins             int       `json:"wins"`
	Losses           int       `json:"losses"`
	Ties             int       `json:"ties"`
	GamesPlayed      int       `json:"games_played"`
	Points           int       `json:"points"`
	GoalsFor         int       `json:"goals_for"`
	GoalsAgainst     int       `json:"goals_against"`
	GoalDifferential int       `json:"goal_differential"`
	Streak           string    `json:"streak"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// GameResult is a single result letter from a team's perspective.
type GameResult byte

const (
	ResultWin  GameResult = 'W'
	ResultLoss GameResult = 'L'
	ResultTie  GameResult = 'T'
)
