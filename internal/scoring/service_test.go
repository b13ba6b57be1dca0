package scoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leagueops/scorekeeper/internal/broadcast"
	"github.com/leagueops/scorekeeper/internal/domain"
)

const (
	svcTenant = "deadbeef-dead-4eef-8eef-deadbeefdead"
	svcGame   = "5a5a5a5a-5a5a-4a5a-8a5a-5a5a5a5a5a5a"
	svcHome   = "77777777-7777-4777-8777-777777777777"
	svcAway   = "88888888-8888-4888-8888-888888888888"
)

type fakeStore struct {
	appended  []*domain.GameEvent
	duplicate *domain.GameEvent
}

func (f *fakeStore) Append(_ context.Context, event *domain.GameEvent) (*domain.GameEvent, bool, error) {
	if f.duplicate != nil {
		return f.duplicate, true, nil
	}
	event.ID = "stored-1"
	f.appended = append(f.appended, event)
	return event, false, nil
}

func (f *fakeStore) ListByGame(_ context.Context, _, _ string) ([]domain.GameEvent, error) {
	events := make([]domain.GameEvent, 0, len(f.appended))
	for _, e := range f.appended {
		events = append(events, *e)
	}
	return events, nil
}

type fakeProjector struct {
	game    *domain.Game
	applied []*domain.GameEvent
	err     error
}

func (f *fakeProjector) Apply(_ context.Context, event *domain.GameEvent, _ domain.Payload) (*domain.Game, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.applied = append(f.applied, event)
	copied := *f.game
	return &copied, nil
}

type fakeStandings struct {
	recalculated []string
}

func (f *fakeStandings) Recalculate(_ context.Context, _, seasonID string) error {
	f.recalculated = append(f.recalculated, seasonID)
	return nil
}

type fakeSnapshots struct {
	generated []string // game ids passed to Generate
	fromGame  []string // game ids passed to FromGame
}

func (f *fakeSnapshots) Generate(_ context.Context, _, gameID string) (*domain.GameSnapshot, error) {
	f.generated = append(f.generated, gameID)
	return &domain.GameSnapshot{GameID: gameID, Version: domain.SnapshotVersion}, nil
}

func (f *fakeSnapshots) FromGame(_ context.Context, _ string, game *domain.Game) (*domain.GameSnapshot, error) {
	f.fromGame = append(f.fromGame, game.ID)
	return &domain.GameSnapshot{
		GameID:    game.ID,
		HomeScore: game.HomeScore,
		AwayScore: game.AwayScore,
		Status:    domain.PublicStatus(game.Status),
		Version:   domain.SnapshotVersion,
	}, nil
}

type fakeDispatcher struct {
	broadcasts []string // message types
}

func (f *fakeDispatcher) Broadcast(_ context.Context, _, _ string, _ *domain.GameSnapshot, messageType string) {
	f.broadcasts = append(f.broadcasts, messageType)
}

type pipeline struct {
	store      *fakeStore
	projector  *fakeProjector
	standings  *fakeStandings
	snapshots  *fakeSnapshots
	dispatcher *fakeDispatcher
	service    *Service
}

func newPipeline() *pipeline {
	p := &pipeline{
		store: &fakeStore{},
		projector: &fakeProjector{game: &domain.Game{
			ID:         svcGame,
			SeasonID:   "season-1",
			HomeTeamID: svcHome,
			AwayTeamID: svcAway,
			Status:     domain.GameLive,
			HomeScore:  1,
		}},
		standings:  &fakeStandings{},
		snapshots:  &fakeSnapshots{},
		dispatcher: &fakeDispatcher{},
	}
	p.service = NewService(p.store, p.projector, p.standings, p.snapshots, p.dispatcher, slog.Default(), nil)
	return p
}

func svcAuth() domain.AuthContext {
	return domain.AuthContext{UserID: "scorer-1", TenantID: svcTenant}
}

func goalRequest() ActionRequest {
	payload, _ := json.Marshal(domain.GoalScoredPayload{
		TeamID:        svcHome,
		PlayerID:      "99999999-9999-4999-8999-999999999999",
		Period:        1,
		TimeRemaining: "10:00",
	})
	return ActionRequest{
		GameID:         svcGame,
		Type:           domain.EventGoalScored,
		Payload:        payload,
		IdempotencyKey: "key-1",
		Source:         "api",
	}
}

func TestSubmitActionGoal(t *testing.T) {
	p := newPipeline()

	result, err := p.service.SubmitAction(context.Background(), svcAuth(), goalRequest())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Duplicate)
	assert.Equal(t, "stored-1", result.Event.ID)
	assert.Equal(t, svcTenant, result.Event.TenantID)
	assert.Equal(t, "scorer-1", result.Event.Metadata.UserID)

	require.Len(t, p.store.appended, 1)
	require.Len(t, p.projector.applied, 1)
	assert.Empty(t, p.standings.recalculated, "goal must not trigger standings")

	require.NotNil(t, result.Snapshot)
	assert.Equal(t, 1, result.Snapshot.HomeScore)
	assert.Equal(t, []string{broadcast.MessageTypeSnapshot}, p.dispatcher.broadcasts)
}

func TestSubmitActionValidationShortCircuits(t *testing.T) {
	p := newPipeline()

	req := goalRequest()
	req.Payload = json.RawMessage(`{"period": 1}`)

	_, err := p.service.SubmitAction(context.Background(), svcAuth(), req)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidPayload, domain.CodeOf(err))
	assert.Empty(t, p.store.appended, "invalid action must never be stored")
	assert.Empty(t, p.projector.applied)
	assert.Empty(t, p.dispatcher.broadcasts)
}

func TestSubmitActionRejectsBadCoordinates(t *testing.T) {
	p := newPipeline()

	req := goalRequest()
	req.Coordinates = &domain.SpatialCoordinates{X: 2.5, Y: 0.5}

	_, err := p.service.SubmitAction(context.Background(), svcAuth(), req)
	require.Error(t, err)
	assert.Empty(t, p.store.appended)
}

func TestSubmitActionDuplicate(t *testing.T) {
	p := newPipeline()
	p.store.duplicate = &domain.GameEvent{ID: "original-1", GameID: svcGame, TenantID: svcTenant, Type: domain.EventGoalScored}

	result, err := p.service.SubmitAction(context.Background(), svcAuth(), goalRequest())
	require.NoError(t, err)

	assert.True(t, result.Duplicate)
	assert.Equal(t, "original-1", result.Event.ID)
	assert.Empty(t, p.projector.applied, "duplicates must not re-project")
	assert.Empty(t, p.standings.recalculated)
	assert.Empty(t, p.dispatcher.broadcasts, "duplicates must not re-broadcast")

	// The caller still gets the current view.
	require.NotNil(t, result.Snapshot)
	assert.Equal(t, []string{svcGame}, p.snapshots.generated)
}

func TestSubmitActionRetryIsStable(t *testing.T) {
	p := newPipeline()

	first, err := p.service.SubmitAction(context.Background(), svcAuth(), goalRequest())
	require.NoError(t, err)

	// Same idempotency key on retry: the store reports a duplicate.
	p.store.duplicate = first.Event
	second, err := p.service.SubmitAction(context.Background(), svcAuth(), goalRequest())
	require.NoError(t, err)

	assert.Equal(t, first.Event.ID, second.Event.ID)
	assert.True(t, second.Duplicate)
	assert.Len(t, p.store.appended, 1, "the event is written at most once")
	assert.Len(t, p.projector.applied, 1, "the projection runs at most once")
}

func TestSubmitActionFinalizationRunsStandings(t *testing.T) {
	p := newPipeline()
	p.projector.game.Status = domain.GameFinal
	p.projector.game.HomeScore = 3
	p.projector.game.AwayScore = 2

	payload, _ := json.Marshal(map[string]int{"final_home_score": 3, "final_away_score": 2})
	req := ActionRequest{GameID: svcGame, Type: domain.EventGameFinalized, Payload: payload}

	result, err := p.service.SubmitAction(context.Background(), svcAuth(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"season-1"}, p.standings.recalculated)
	assert.Equal(t, []string{broadcast.MessageTypeFinalized}, p.dispatcher.broadcasts)
	assert.Equal(t, domain.SnapshotFinal, result.Snapshot.Status)
}

func TestSubmitActionProjectionFailureReturnsError(t *testing.T) {
	p := newPipeline()
	p.projector.err = domain.NewConflict(domain.CodeGameAlreadyFinalized, "game %s is already finalized", svcGame)

	_, err := p.service.SubmitAction(context.Background(), svcAuth(), goalRequest())
	require.Error(t, err)
	assert.Equal(t, domain.CodeGameAlreadyFinalized, domain.CodeOf(err))
	assert.Empty(t, p.dispatcher.broadcasts)
}
