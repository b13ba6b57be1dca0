// Package standings derives a season's league table from its finalized
// games. The table is always recomputed in full from scratch; re-running the
// derivation over the same finalized-game set yields the same table.
package standings

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/leagueops/scorekeeper/internal/domain"
	"github.com/leagueops/scorekeeper/internal/metrics"
)

const (
	pointsPerWin = 3
	pointsPerTie = 1

	// streakWindow bounds how many recent results feed the streak.
	streakWindow = 10
)

// Repository is the relational surface the engine needs.
type Repository interface {
	GetSeason(ctx context.Context, tenantID, seasonID string) (*domain.Season, error)
	ListTeams(ctx context.Context, tenantID, leagueID string) ([]domain.Team, error)
	ListFinalGames(ctx context.Context, tenantID, seasonID string) ([]domain.Game, error)
	ReplaceStandings(ctx context.Context, tenantID, seasonID string, standings []domain.TeamStanding) error
}

// Engine recomputes league tables.
type Engine struct {
	repo    Repository
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates a standings engine.
func NewEngine(repo Repository, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{repo: repo, logger: logger, metrics: m}
}

// Recalculate rebuilds the league table for a season and persists it,
// replacing all prior rows.
func (e *Engine) Recalculate(ctx context.Context, tenantID, seasonID string) error {
	start := time.Now()

	season, err := e.repo.GetSeason(ctx, tenantID, seasonID)
	if err != nil {
		return err
	}
	teams, err := e.repo.ListTeams(ctx, tenantID, season.LeagueID)
	if err != nil {
		return err
	}
	games, err := e.repo.ListFinalGames(ctx, tenantID, seasonID)
	if err != nil {
		return err
	}

	table := Compute(seasonID, teams, games)
	if err := e.repo.ReplaceStandings(ctx, tenantID, seasonID, table); err != nil {
		return err
	}

	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.StandingsDuration.Observe(elapsed.Seconds())
	}
	e.logger.Info("standings recalculated",
		"season_id", seasonID,
		"teams", len(teams),
		"final_games", len(games),
		"duration", elapsed,
	)
	return nil
}

type accumulator struct {
	standing domain.TeamStanding
	recent   []domain.GameResult // most recent first, capped at streakWindow
}

// Compute derives the full league table from a season's finalized games.
// It is pure: no I/O, deterministic for a given input.
func Compute(seasonID string, teams []domain.Team, finalGames []domain.Game) []domain.TeamStanding {
	acc := make(map[string]*accumulator, len(teams))
	order := make([]string, 0, len(teams))
	for _, team := range teams {
		acc[team.ID] = &accumulator{standing: domain.TeamStanding{
			SeasonID: seasonID,
			TeamID:   team.ID,
		}}
		order = append(order, team.ID)
	}

	// Chronological replay order; the streak depends on it.
	games := make([]domain.Game, len(finalGames))
	copy(games, finalGames)
	sort.SliceStable(games, func(i, j int) bool {
		return games[i].ScheduledAt.Before(games[j].ScheduledAt)
	})

	for _, game := range games {
		home, homeOK := acc[game.HomeTeamID]
		away, awayOK := acc[game.AwayTeamID]
		if !homeOK || !awayOK {
			continue
		}

		home.standing.GoalsFor += game.HomeScore
		home.standing.GoalsAgainst += game.AwayScore
		away.standing.GoalsFor += game.AwayScore
		away.standing.GoalsAgainst += game.HomeScore

		switch {
		case game.HomeScore > game.AwayScore:
			home.record(domain.ResultWin)
			away.record(domain.ResultLoss)
		case game.AwayScore > game.HomeScore:
			away.record(domain.ResultWin)
			home.record(domain.ResultLoss)
		default:
			home.record(domain.ResultTie)
			away.record(domain.ResultTie)
		}
	}

	table := make([]domain.TeamStanding, 0, len(order))
	for _, teamID := range order {
		a := acc[teamID]
		st := a.standing
		st.GamesPlayed = st.Wins + st.Losses + st.Ties
		st.Points = st.Wins*pointsPerWin + st.Ties*pointsPerTie
		st.GoalDifferential = st.GoalsFor - st.GoalsAgainst
		st.Streak = Streak(a.recent)
		table = append(table, st)
	}
	return table
}

func (a *accumulator) record(result domain.GameResult) {
	switch result {
	case domain.ResultWin:
		a.standing.Wins++
	case domain.ResultLoss:
		a.standing.Losses++
	case domain.ResultTie:
		a.standing.Ties++
	}
	a.recent = append([]domain.GameResult{result}, a.recent...)
	if len(a.recent) > streakWindow {
		a.recent = a.recent[:streakWindow]
	}
}

// Streak renders consecutive identical results counted back from the most
// recent game, e.g. W3 or L2. Empty results yield an empty streak.
func Streak(recent []domain.GameResult) string {
	if len(recent) == 0 {
		return ""
	}
	head := recent[0]
	count := 1
	for _, r := range recent[1:] {
		if r != head {
			break
		}
		count++
	}
	return string(head) + strconv.Itoa(count)
}
