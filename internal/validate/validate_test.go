package validate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leagueops/scorekeeper/internal/domain"
)

func TestPayloadUnknownEventType(t *testing.T) {
	_, err := Payload("QUIDDITCH_SNITCH_CAUGHT", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, domain.CodeUnknownEventType, domain.CodeOf(err))
	assert.True(t, domain.IsValidation(err))
}

func TestPayloadGoalScored(t *testing.T) {
	raw := json.RawMessage(`{
		"team_id": "c6f1b7c1-93a4-4a6e-9b10-94b4f5f1a111",
		"player_id": "d2a0c9aa-11cd-4a81-a3fd-30c6f6ab2222",
		"period": 2,
		"time_remaining": "12:34"
	}`)
	payload, err := Payload(domain.EventGoalScored, raw)
	require.NoError(t, err)

	goal, ok := payload.(domain.GoalScoredPayload)
	require.True(t, ok)
	assert.Equal(t, 2, goal.Period)
	assert.Equal(t, "12:34", goal.TimeRemaining)
}

func TestPayloadGoalScoredMissingFields(t *testing.T) {
	_, err := Payload(domain.EventGoalScored, json.RawMessage(`{"period": 1}`))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidPayload, domain.CodeOf(err))

	var verr *domain.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "team_id")
	assert.Contains(t, verr.Fields, "player_id")
	assert.Contains(t, verr.Fields, "time_remaining")
}

func TestPayloadGoalScoredBadClock(t *testing.T) {
	for _, clock := range []string{"12:61", "1:30", "12-34", "99:99", ""} {
		raw, _ := json.Marshal(map[string]any{
			"team_id":        "c6f1b7c1-93a4-4a6e-9b10-94b4f5f1a111",
			"player_id":      "d2a0c9aa-11cd-4a81-a3fd-30c6f6ab2222",
			"period":         1,
			"time_remaining": clock,
		})
		_, err := Payload(domain.EventGoalScored, raw)
		require.Error(t, err, "clock %q should be rejected", clock)

		var verr *domain.Error
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "time_remaining")
	}
}

func TestPayloadGoalScoredBadUUID(t *testing.T) {
	raw := json.RawMessage(`{
		"team_id": "not-a-uuid",
		"player_id": "d2a0c9aa-11cd-4a81-a3fd-30c6f6ab2222",
		"period": 1,
		"time_remaining": "05:00"
	}`)
	_, err := Payload(domain.EventGoalScored, raw)
	require.Error(t, err)

	var verr *domain.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be a UUID", verr.Fields["team_id"])
}

func TestPayloadPenaltyRequiresInfraction(t *testing.T) {
	raw := json.RawMessage(`{
		"team_id": "c6f1b7c1-93a4-4a6e-9b10-94b4f5f1a111",
		"player_id": "d2a0c9aa-11cd-4a81-a3fd-30c6f6ab2222",
		"period": 3,
		"time_remaining": "00:42",
		"minutes": 2
	}`)
	_, err := Payload(domain.EventPenaltyAssessed, raw)
	require.Error(t, err)

	var verr *domain.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "infraction")
}

func TestPayloadGameFinalizedRejectsUnknownFields(t *testing.T) {
	raw := json.RawMessage(`{"final_home_score": 3, "final_away_score": 2, "overtime": true}`)
	_, err := Payload(domain.EventGameFinalized, raw)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidPayload, domain.CodeOf(err))
}

func TestPayloadGameFinalized(t *testing.T) {
	raw := json.RawMessage(`{"final_home_score": 0, "final_away_score": 0}`)
	payload, err := Payload(domain.EventGameFinalized, raw)
	require.NoError(t, err)

	final, ok := payload.(domain.GameFinalizedPayload)
	require.True(t, ok)
	require.NotNil(t, final.FinalHomeScore)
	require.NotNil(t, final.FinalAwayScore)
	assert.Zero(t, *final.FinalHomeScore)
	assert.Zero(t, *final.FinalAwayScore)
}

func TestPayloadGameFinalizedRequiresScores(t *testing.T) {
	// An absent score must not decode to an implicit 0-0 finalization.
	tests := []struct {
		name    string
		raw     string
		missing []string
	}{
		{"empty payload", `{}`, []string{"final_home_score", "final_away_score"}},
		{"away score absent", `{"final_home_score": 3}`, []string{"final_away_score"}},
		{"home score absent", `{"final_away_score": 2}`, []string{"final_home_score"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Payload(domain.EventGameFinalized, json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.Equal(t, domain.CodeInvalidPayload, domain.CodeOf(err))

			var verr *domain.Error
			require.ErrorAs(t, err, &verr)
			for _, field := range tt.missing {
				assert.Contains(t, verr.Fields, field)
			}
		})
	}
}

func TestPayloadGameFinalizedRejectsNegativeScore(t *testing.T) {
	raw := json.RawMessage(`{"final_home_score": -1, "final_away_score": 0}`)
	_, err := Payload(domain.EventGameFinalized, raw)
	require.Error(t, err)

	var verr *domain.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "final_home_score")
}

func TestPayloadScoreCorrectedRequiresScores(t *testing.T) {
	_, err := Payload(domain.EventScoreCorrected, json.RawMessage(`{"reason": "oops"}`))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidPayload, domain.CodeOf(err))

	var verr *domain.Error
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"old_home_score", "old_away_score", "new_home_score", "new_away_score"} {
		assert.Contains(t, verr.Fields, field)
	}
}

func TestPayloadEmptyDefaultsToEmptyObject(t *testing.T) {
	_, err := Payload(domain.EventGameStarted, nil)
	assert.NoError(t, err)
}

func TestPayloadMalformedJSON(t *testing.T) {
	_, err := Payload(domain.EventGameStarted, json.RawMessage(`{`))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidPayload, domain.CodeOf(err))
}

func TestOccurredAtWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		occurredAt time.Time
		wantReason string
	}{
		{"now is accepted", now, ""},
		{"two hours old is accepted", now.Add(-2 * time.Hour), ""},
		{"exactly 24h old is accepted", now.Add(-MaxEventAge), ""},
		{"one hour ahead is rejected", now.Add(time.Hour), "future"},
		{"one second ahead is rejected", now.Add(time.Second), "future"},
		{"25 hours old is rejected", now.Add(-25 * time.Hour), "too_old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := OccurredAt(tt.occurredAt, now)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, domain.CodeInvalidTimestamp, domain.CodeOf(err))

			var verr *domain.Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantReason, verr.Fields["reason"])
		})
	}
}

func TestCoordinates(t *testing.T) {
	assert.NoError(t, Coordinates(nil))
	assert.NoError(t, Coordinates(&domain.SpatialCoordinates{X: 0, Y: 1}))
	assert.NoError(t, Coordinates(&domain.SpatialCoordinates{X: 0.55, Y: 0.1, Zone: "slot"}))

	err := Coordinates(&domain.SpatialCoordinates{X: 1.2, Y: 0.5})
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidPayload, domain.CodeOf(err))

	err = Coordinates(&domain.SpatialCoordinates{X: 0.5, Y: -0.1})
	require.Error(t, err)
}
