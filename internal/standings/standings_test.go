package standings

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leagueops/scorekeeper/internal/domain"
)

const seasonID = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"

func teams(ids ...string) []domain.Team {
	out := make([]domain.Team, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Team{ID: id, LeagueID: "league-1", Name: "Team " + id})
	}
	return out
}

func finalGame(home, away string, homeScore, awayScore int, day int) domain.Game {
	return domain.Game{
		ID:          home + "-" + away,
		SeasonID:    seasonID,
		HomeTeamID:  home,
		AwayTeamID:  away,
		HomeScore:   homeScore,
		AwayScore:   awayScore,
		Status:      domain.GameFinal,
		ScheduledAt: time.Date(2026, 1, day, 19, 0, 0, 0, time.UTC),
	}
}

func findRow(t *testing.T, table []domain.TeamStanding, teamID string) domain.TeamStanding {
	t.Helper()
	for _, row := range table {
		if row.TeamID == teamID {
			return row
		}
	}
	t.Fatalf("no standing row for team %s", teamID)
	return domain.TeamStanding{}
}

func TestComputeIdentities(t *testing.T) {
	games := []domain.Game{
		finalGame("a", "b", 3, 1, 1),
		finalGame("b", "c", 2, 2, 2),
		finalGame("c", "a", 0, 4, 3),
		finalGame("a", "b", 1, 2, 4),
	}
	table := Compute(seasonID, teams("a", "b", "c"), games)
	require.Len(t, table, 3)

	for _, row := range table {
		assert.Equal(t, row.Wins+row.Losses+row.Ties, row.GamesPlayed, "team %s", row.TeamID)
		assert.Equal(t, row.Wins*3+row.Ties, row.Points, "team %s", row.TeamID)
		assert.Equal(t, row.GoalsFor-row.GoalsAgainst, row.GoalDifferential, "team %s", row.TeamID)
	}

	a := findRow(t, table, "a")
	assert.Equal(t, 2, a.Wins)
	assert.Equal(t, 1, a.Losses)
	assert.Equal(t, 0, a.Ties)
	assert.Equal(t, 8, a.GoalsFor)
	assert.Equal(t, 3, a.GoalsAgainst)
	assert.Equal(t, "L1", a.Streak)

	b := findRow(t, table, "b")
	assert.Equal(t, 1, b.Wins)
	assert.Equal(t, 1, b.Ties)
	assert.Equal(t, 4, b.Points)
	assert.Equal(t, "W1", b.Streak)

	c := findRow(t, table, "c")
	assert.Equal(t, 0, c.Wins)
	assert.Equal(t, 1, c.Ties)
	assert.Equal(t, 1, c.Points)
}

func TestComputeIsDeterministic(t *testing.T) {
	games := []domain.Game{
		finalGame("a", "b", 2, 0, 2),
		finalGame("b", "a", 1, 1, 1),
	}
	first := Compute(seasonID, teams("a", "b"), games)
	second := Compute(seasonID, teams("a", "b"), games)
	assert.Equal(t, first, second)
}

func TestComputeTeamsWithNoGames(t *testing.T) {
	table := Compute(seasonID, teams("a", "b"), nil)
	require.Len(t, table, 2)
	for _, row := range table {
		assert.Zero(t, row.GamesPlayed)
		assert.Zero(t, row.Points)
		assert.Empty(t, row.Streak)
	}
}

func TestComputeStreakFollowsChronology(t *testing.T) {
	// Team a: loses day 1, then wins days 2-4. Streak counts back from the
	// newest game regardless of input slice order.
	games := []domain.Game{
		finalGame("a", "b", 3, 0, 4),
		finalGame("b", "a", 2, 1, 1),
		finalGame("a", "b", 2, 1, 2),
		finalGame("b", "a", 0, 1, 3),
	}
	table := Compute(seasonID, teams("a", "b"), games)

	a := findRow(t, table, "a")
	assert.Equal(t, "W3", a.Streak)
	b := findRow(t, table, "b")
	assert.Equal(t, "L3", b.Streak)
}

func TestStreak(t *testing.T) {
	tests := []struct {
		recent []domain.GameResult
		want   string
	}{
		{nil, ""},
		{[]domain.GameResult{domain.ResultWin}, "W1"},
		{[]domain.GameResult{domain.ResultWin, domain.ResultWin, domain.ResultWin, domain.ResultLoss}, "W3"},
		{[]domain.GameResult{domain.ResultLoss, domain.ResultLoss, domain.ResultWin}, "L2"},
		{[]domain.GameResult{domain.ResultTie, domain.ResultWin}, "T1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Streak(tt.recent))
	}
}

// fakeRepo wires the engine end to end without a database.
type fakeRepo struct {
	season   *domain.Season
	teams    []domain.Team
	games    []domain.Game
	replaced []domain.TeamStanding
}

func (f *fakeRepo) GetSeason(_ context.Context, _, seasonID string) (*domain.Season, error) {
	if f.season == nil {
		return nil, domain.NewNotFound(domain.CodeSeasonNotFound, "season %s not found", seasonID)
	}
	return f.season, nil
}

func (f *fakeRepo) ListTeams(_ context.Context, _, _ string) ([]domain.Team, error) {
	return f.teams, nil
}

func (f *fakeRepo) ListFinalGames(_ context.Context, _, _ string) ([]domain.Game, error) {
	return f.games, nil
}

func (f *fakeRepo) ReplaceStandings(_ context.Context, _, _ string, standings []domain.TeamStanding) error {
	f.replaced = standings
	return nil
}

func TestRecalculatePersistsTable(t *testing.T) {
	repo := &fakeRepo{
		season: &domain.Season{ID: seasonID, LeagueID: "league-1"},
		teams:  teams("a", "b"),
		games:  []domain.Game{finalGame("a", "b", 1, 0, 1)},
	}
	engine := NewEngine(repo, slog.Default(), nil)

	err := engine.Recalculate(context.Background(), "tenant-1", seasonID)
	require.NoError(t, err)
	require.Len(t, repo.replaced, 2)

	a := findRow(t, repo.replaced, "a")
	assert.Equal(t, 3, a.Points)
	assert.Equal(t, "W1", a.Streak)
}

func TestRecalculateUnknownSeason(t *testing.T) {
	engine := NewEngine(&fakeRepo{}, slog.Default(), nil)
	err := engine.Recalculate(context.Background(), "tenant-1", seasonID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeSeasonNotFound, domain.CodeOf(err))
}
