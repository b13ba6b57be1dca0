package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leagueops/scorekeeper/internal/config"
	"github.com/leagueops/scorekeeper/internal/domain"
	"github.com/leagueops/scorekeeper/internal/tenant"
)

// Repository provides PostgreSQL-based access to the league hierarchy and
// the mutable game aggregates. All tenant-scoped statements are routed
// through the tenant guard; the tenant id is always bound as $1.
type Repository struct {
	pool    *pgxpool.Pool
	guard   *tenant.Guard
	logger  *slog.Logger
	timeout time.Duration
}

// NewRepository creates a new PostgreSQL repository. The guard constructor
// receives the pool-backed querier so the same isolation policy also covers
// transaction-bound execution.
func NewRepository(cfg *config.PostgresConfig, newGuard func(tenant.Querier) *tenant.Guard, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:    pool,
		guard:   newGuard(poolQuerier{pool: pool}),
		logger:  logger,
		timeout: cfg.QueryTimeout,
	}, nil
}

// Close closes the database connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations.
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS leagues (
			id VARCHAR(36) PRIMARY KEY,
			tenant_id VARCHAR(36) NOT NULL,
			name VARCHAR(255) NOT NULL,
			sport VARCHAR(64) NOT NULL DEFAULT 'hockey',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS seasons (
			id VARCHAR(36) PRIMARY KEY,
			league_id VARCHAR(36) NOT NULL REFERENCES leagues(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			starts_at TIMESTAMP,
			ends_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS teams (
			id VARCHAR(36) PRIMARY KEY,
			league_id VARCHAR(36) NOT NULL REFERENCES leagues(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id VARCHAR(36) PRIMARY KEY,
			season_id VARCHAR(36) NOT NULL REFERENCES seasons(id) ON DELETE CASCADE,
			home_team_id VARCHAR(36) NOT NULL,
			away_team_id VARCHAR(36) NOT NULL,
			scheduled_at TIMESTAMP NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'SCHEDULED',
			home_score INT NOT NULL DEFAULT 0,
			away_score INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS team_standings (
			season_id VARCHAR(36) NOT NULL REFERENCES seasons(id) ON DELETE CASCADE,
			team_id VARCHAR(36) NOT NULL,
			wins INT NOT NULL DEFAULT 0,
			losses INT NOT NULL DEFAULT 0,
			ties INT NOT NULL DEFAULT 0,
			games_played INT NOT NULL DEFAULT 0,
			points INT NOT NULL DEFAULT 0,
			goals_for INT NOT NULL DEFAULT 0,
			goals_against INT NOT NULL DEFAULT 0,
			goal_differential INT NOT NULL DEFAULT 0,
			streak VARCHAR(8) NOT NULL DEFAULT '',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (season_id, team_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leagues_tenant ON leagues(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_seasons_league ON seasons(league_id)`,
		`CREATE INDEX IF NOT EXISTS idx_teams_league ON teams(league_id)`,
		`CREATE INDEX IF NOT EXISTS idx_games_season ON games(season_id, scheduled_at)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const gameColumns = `g.id, g.season_id, g.home_team_id, g.away_team_id,
	g.scheduled_at, g.status, g.home_score, g.away_score,
	g.created_at, g.updated_at, l.tenant_id`

const gameJoin = `FROM games g
	JOIN seasons s ON s.id = g.season_id
	JOIN leagues l ON l.id = s.league_id`

// GetGame loads a game aggregate within the caller's tenant.
func (r *Repository) GetGame(ctx context.Context, tenantID, gameID string) (*domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + gameColumns + ` ` + gameJoin + ` WHERE l.tenant_id = $1 AND g.id = $2`
	rows, err := r.guard.Query(ctx, tenantID, query, gameID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NewNotFound(domain.CodeGameNotFound, "game %s not found", gameID)
	}
	return gameFromRow(rows[0]), nil
}

// WithGameLock runs mutate against the game row while it is locked
// (SELECT ... FOR UPDATE) inside one transaction, so concurrent applies to
// the same game serialize instead of racing. The updated aggregate is
// written back and returned.
func (r *Repository) WithGameLock(ctx context.Context, tenantID, gameID string, mutate func(*domain.Game) error) (*domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, domain.NewUnavailable(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	guard := r.guard.WithDB(txQuerier{tx: tx})

	query := `SELECT ` + gameColumns + ` ` + gameJoin + `
		WHERE l.tenant_id = $1 AND g.id = $2 FOR UPDATE OF g`
	rows, err := guard.Query(ctx, tenantID, query, gameID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NewNotFound(domain.CodeGameNotFound, "game %s not found", gameID)
	}

	game := gameFromRow(rows[0])
	if err := mutate(game); err != nil {
		return nil, err
	}
	game.UpdatedAt = time.Now().UTC()

	update := `UPDATE games SET status = $3, home_score = $4, away_score = $5, updated_at = $6
		WHERE id = $2 AND season_id IN (
			SELECT s.id FROM seasons s JOIN leagues l ON l.id = s.league_id WHERE l.tenant_id = $1
		)`
	affected, err := guard.Exec(ctx, tenantID, update,
		game.ID, string(game.Status), game.HomeScore, game.AwayScore, game.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.NewNotFound(domain.CodeGameNotFound, "game %s not found", gameID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.NewUnavailable(err, "committing game update")
	}
	return game, nil
}

// GetSeason resolves a season and its league within the caller's tenant.
func (r *Repository) GetSeason(ctx context.Context, tenantID, seasonID string) (*domain.Season, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT s.id, s.league_id, s.name, s.starts_at, s.ends_at, l.tenant_id
		FROM seasons s JOIN leagues l ON l.id = s.league_id
		WHERE l.tenant_id = $1 AND s.id = $2`
	rows, err := r.guard.Query(ctx, tenantID, query, seasonID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NewNotFound(domain.CodeSeasonNotFound, "season %s not found", seasonID)
	}
	row := rows[0]
	return &domain.Season{
		ID:       asString(row["id"]),
		LeagueID: asString(row["league_id"]),
		Name:     asString(row["name"]),
		StartsAt: asTime(row["starts_at"]),
		EndsAt:   asTime(row["ends_at"]),
	}, nil
}

// ListTeams returns all teams in a league.
func (r *Repository) ListTeams(ctx context.Context, tenantID, leagueID string) ([]domain.Team, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT t.id, t.league_id, t.name, l.tenant_id
		FROM teams t JOIN leagues l ON l.id = t.league_id
		WHERE l.tenant_id = $1 AND t.league_id = $2
		ORDER BY t.name`
	rows, err := r.guard.Query(ctx, tenantID, query, leagueID)
	if err != nil {
		return nil, err
	}

	teams := make([]domain.Team, 0, len(rows))
	for _, row := range rows {
		teams = append(teams, domain.Team{
			ID:       asString(row["id"]),
			LeagueID: asString(row["league_id"]),
			Name:     asString(row["name"]),
		})
	}
	return teams, nil
}

// ListFinalGames returns a season's finalized games in chronological order,
// the replay order standings derivation depends on.
func (r *Repository) ListFinalGames(ctx context.Context, tenantID, seasonID string) ([]domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + gameColumns + ` ` + gameJoin + `
		WHERE l.tenant_id = $1 AND g.season_id = $2 AND g.status = 'FINAL'
		ORDER BY g.scheduled_at ASC`
	rows, err := r.guard.Query(ctx, tenantID, query, seasonID)
	if err != nil {
		return nil, err
	}

	games := make([]domain.Game, 0, len(rows))
	for _, row := range rows {
		games = append(games, *gameFromRow(row))
	}
	return games, nil
}

// ReplaceStandings replaces a season's league table in full inside one
// transaction. Rows are never patched incrementally.
func (r *Repository) ReplaceStandings(ctx context.Context, tenantID, seasonID string, standings []domain.TeamStanding) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.NewUnavailable(err, "beginning standings transaction")
	}
	defer tx.Rollback(ctx)

	guard := r.guard.WithDB(txQuerier{tx: tx})

	del := `DELETE FROM team_standings WHERE season_id = $2 AND season_id IN (
		SELECT s.id FROM seasons s JOIN leagues l ON l.id = s.league_id WHERE l.tenant_id = $1
	)`
	if _, err := guard.Exec(ctx, tenantID, del, seasonID); err != nil {
		return err
	}

	upsert := `INSERT INTO team_standings (season_id, team_id, wins, losses, ties,
			games_played, points, goals_for, goals_against, goal_differential, streak, updated_at)
		SELECT $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		WHERE EXISTS (
			SELECT 1 FROM seasons s JOIN leagues l ON l.id = s.league_id
			WHERE l.tenant_id = $1 AND s.id = $2
		)
		ON CONFLICT (season_id, team_id) DO UPDATE SET
			wins = EXCLUDED.wins, losses = EXCLUDED.losses, ties = EXCLUDED.ties,
			games_played = EXCLUDED.games_played, points = EXCLUDED.points,
			goals_for = EXCLUDED.goals_for, goals_against = EXCLUDED.goals_against,
			goal_differential = EXCLUDED.goal_differential, streak = EXCLUDED.streak,
			updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for _, st := range standings {
		_, err := guard.Exec(ctx, tenantID, upsert,
			seasonID, st.TeamID, st.Wins, st.Losses, st.Ties,
			st.GamesPlayed, st.Points, st.GoalsFor, st.GoalsAgainst,
			st.GoalDifferential, st.Streak, now)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.NewUnavailable(err, "committing standings")
	}
	return nil
}

// ListStandings returns the current league table for a season, best first.
func (r *Repository) ListStandings(ctx context.Context, tenantID, seasonID string) ([]domain.TeamStanding, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ts.season_id, ts.team_id, ts.wins, ts.losses, ts.ties,
			ts.games_played, ts.points, ts.goals_for, ts.goals_against,
			ts.goal_differential, ts.streak, ts.updated_at, l.tenant_id
		FROM team_standings ts
		JOIN seasons s ON s.id = ts.season_id
		JOIN leagues l ON l.id = s.league_id
		WHERE l.tenant_id = $1 AND ts.season_id = $2
		ORDER BY ts.points DESC, ts.goal_differential DESC, ts.goals_for DESC`
	rows, err := r.guard.Query(ctx, tenantID, query, seasonID)
	if err != nil {
		return nil, err
	}

	standings := make([]domain.TeamStanding, 0, len(rows))
	for _, row := range rows {
		standings = append(standings, domain.TeamStanding{
			SeasonID:         asString(row["season_id"]),
			TeamID:           asString(row["team_id"]),
			Wins:             asInt(row["wins"]),
			Losses:           asInt(row["losses"]),
			Ties:             asInt(row["ties"]),
			GamesPlayed:      asInt(row["games_played"]),
			Points:           asInt(row["points"]),
			GoalsFor:         asInt(row["goals_for"]),
			GoalsAgainst:     asInt(row["goals_against"]),
			GoalDifferential: asInt(row["goal_differential"]),
			Streak:           asString(row["streak"]),
			UpdatedAt:        asTime(row["updated_at"]),
		})
	}
	return standings, nil
}

func gameFromRow(row tenant.Row) *domain.Game {
	return &domain.Game{
		ID:          asString(row["id"]),
		SeasonID:    asString(row["season_id"]),
		HomeTeamID:  asString(row["home_team_id"]),
		AwayTeamID:  asString(row["away_team_id"]),
		ScheduledAt: asTime(row["scheduled_at"]),
		Status:      domain.GameStatus(asString(row["status"])),
		HomeScore:   asInt(row["home_score"]),
		AwayScore:   asInt(row["away_score"]),
		CreatedAt:   asTime(row["created_at"]),
		UpdatedAt:   asTime(row["updated_at"]),
	}
}
