// Package snapshot composes the game aggregate and its recent events into a
// versioned, client-consumable view. Snapshots are ephemeral: generated on
// demand, never persisted.
package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/leagueops/scorekeeper/internal/domain"
	"github.com/leagueops/scorekeeper/internal/metrics"
)

// defaultRecentEventMax bounds how many events a snapshot embeds when no
// limit is configured.
const defaultRecentEventMax = 10

// GameReader loads the aggregate.
type GameReader interface {
	GetGame(ctx context.Context, tenantID, gameID string) (*domain.Game, error)
}

// EventReader loads a game's stored events.
type EventReader interface {
	ListByGame(ctx context.Context, tenantID, gameID string) ([]domain.GameEvent, error)
}

// Generator builds snapshots.
type Generator struct {
	games     GameReader
	events    EventReader
	recentMax int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewGenerator creates a snapshot generator. recentMax bounds the embedded
// event list; zero means the default.
func NewGenerator(games GameReader, events EventReader, recentMax int, logger *slog.Logger, m *metrics.Metrics) *Generator {
	if recentMax <= 0 {
		recentMax = defaultRecentEventMax
	}
	return &Generator{games: games, events: events, recentMax: recentMax, logger: logger, metrics: m, now: time.Now}
}

// Generate loads the current aggregate and composes a snapshot.
func (g *Generator) Generate(ctx context.Context, tenantID, gameID string) (*domain.GameSnapshot, error) {
	game, err := g.games.GetGame(ctx, tenantID, gameID)
	if err != nil {
		return nil, err
	}
	return g.FromGame(ctx, tenantID, game)
}

// FromGame composes a snapshot from an already-loaded, already-updated
// aggregate, sparing the redundant read on the write path.
func (g *Generator) FromGame(ctx context.Context, tenantID string, game *domain.Game) (*domain.GameSnapshot, error) {
	start := g.now()

	events, err := g.events.ListByGame(ctx, tenantID, game.ID)
	if err != nil {
		return nil, err
	}
	snap := Compose(game, events, g.recentMax, start)

	if g.metrics != nil {
		g.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	}
	return snap, nil
}

// Compose is the pure assembly step: sort events descending by occurred_at
// (event id breaking ties), keep the first recentMax, derive period and
// clock from the newest event carrying them, and map the status vocabulary.
func Compose(game *domain.Game, events []domain.GameEvent, recentMax int, now time.Time) *domain.GameSnapshot {
	if recentMax <= 0 {
		recentMax = defaultRecentEventMax
	}
	sorted := make([]domain.GameEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].OccurredAt.Equal(sorted[j].OccurredAt) {
			return sorted[i].OccurredAt.After(sorted[j].OccurredAt)
		}
		return sorted[i].ID > sorted[j].ID
	})
	if len(sorted) > recentMax {
		sorted = sorted[:recentMax]
	}

	recent := make([]domain.SnapshotEvent, 0, len(sorted))
	for _, event := range sorted {
		recent = append(recent, domain.SnapshotEvent{
			EventID:    event.ID,
			Type:       event.Type,
			OccurredAt: event.OccurredAt,
			Payload:    event.Payload,
			ReversedBy: event.ReversedBy,
		})
	}

	period, clock := gameClock(sorted)

	return &domain.GameSnapshot{
		GameID:       game.ID,
		HomeScore:    game.HomeScore,
		AwayScore:    game.AwayScore,
		Period:       period,
		ClockSeconds: clock,
		Status:       domain.PublicStatus(game.Status),
		RecentEvents: recent,
		Version:      domain.SnapshotVersion,
		GeneratedAt:  now.UTC(),
	}
}

// gameClock scans newest-first for an event payload carrying period and
// time_remaining. Events that don't carry them (finalization, cancellation)
// are skipped.
func gameClock(newestFirst []domain.GameEvent) (period, clockSeconds int) {
	for _, event := range newestFirst {
		var fields struct {
			Period        int    `json:"period"`
			TimeRemaining string `json:"time_remaining"`
		}
		if err := json.Unmarshal(event.Payload, &fields); err != nil {
			continue
		}
		if fields.Period == 0 {
			continue
		}
		return fields.Period, parseClock(fields.TimeRemaining)
	}
	return 0, 0
}

// parseClock converts MM:SS to seconds; malformed input yields 0.
func parseClock(clock string) int {
	if len(clock) != 5 || clock[2] != ':' {
		return 0
	}
	minutes := int(clock[0]-'0')*10 + int(clock[1]-'0')
	seconds := int(clock[3]-'0')*10 + int(clock[4]-'0')
	if minutes < 0 || seconds < 0 || seconds > 59 {
		return 0
	}
	return minutes*60 + seconds
}
