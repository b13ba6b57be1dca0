// Package validate checks scoring action payloads against the schema
// implied by their event type. It performs no I/O: every input is either
// accepted (returning the decoded payload variant) or rejected with
// field-level detail.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/leagueops/scorekeeper/internal/domain"
)

// MaxEventAge is how far in the past an offline-captured event may be dated.
const MaxEventAge = 24 * time.Hour

var clockPattern = regexp.MustCompile(`^[0-9]{2}:[0-5][0-9]$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})
	return v
}

// Payload decodes and validates raw against the schema for eventType,
// returning the typed payload variant on success.
func Payload(eventType domain.EventType, raw json.RawMessage) (domain.Payload, error) {
	if !domain.KnownEventType(eventType) {
		return nil, domain.NewValidation(domain.CodeUnknownEventType,
			"unknown event type %q", eventType)
	}
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	var (
		payload domain.Payload
		err     error
	)
	switch eventType {
	case domain.EventGameStarted:
		payload, err = decode[domain.GameStartedPayload](raw, false)
	case domain.EventGoalScored:
		payload, err = decode[domain.GoalScoredPayload](raw, false)
	case domain.EventPenaltyAssessed:
		payload, err = decode[domain.PenaltyAssessedPayload](raw, false)
	case domain.EventShotOnGoal:
		payload, err = decode[domain.ShotOnGoalPayload](raw, false)
	case domain.EventPeriodEnded:
		payload, err = decode[domain.PeriodEndedPayload](raw, false)
	case domain.EventGameFinalized:
		// The finalization schema is closed: unknown fields are rejected so a
		// fat-fingered score key cannot silently vanish.
		payload, err = decode[domain.GameFinalizedPayload](raw, true)
	case domain.EventGameCancelled:
		payload, err = decode[domain.GameCancelledPayload](raw, false)
	case domain.EventScoreCorrected:
		payload, err = decode[domain.ScoreCorrectedPayload](raw, false)
	case domain.EventReversal:
		payload, err = decode[domain.ReversalPayload](raw, false)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func decode[T domain.Payload](raw json.RawMessage, strict bool) (domain.Payload, error) {
	var target T
	dec := json.NewDecoder(bytes.NewReader(raw))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&target); err != nil {
		verr := domain.NewValidation(domain.CodeInvalidPayload,
			"malformed %s payload", target.EventType())
		return nil, verr.WithField("payload", err.Error())
	}
	if err := validate.Struct(target); err != nil {
		return nil, fieldErrors(target.EventType(), err)
	}
	return target, nil
}

func fieldErrors(eventType domain.EventType, err error) *domain.Error {
	verr := domain.NewValidation(domain.CodeInvalidPayload,
		"invalid %s payload", eventType)
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return verr.WithField("payload", err.Error())
	}
	for _, fe := range fields {
		verr = verr.WithField(jsonName(fe), constraintDetail(fe))
	}
	return verr
}

func jsonName(fe validator.FieldError) string {
	switch fe.Field() {
	case "TeamID":
		return "team_id"
	case "PlayerID":
		return "player_id"
	case "AssistID":
		return "assist_id"
	case "Period":
		return "period"
	case "TimeRemaining":
		return "time_remaining"
	case "Infraction":
		return "infraction"
	case "Minutes":
		return "minutes"
	case "FinalHomeScore":
		return "final_home_score"
	case "FinalAwayScore":
		return "final_away_score"
	case "OldHomeScore":
		return "old_home_score"
	case "OldAwayScore":
		return "old_away_score"
	case "NewHomeScore":
		return "new_home_score"
	case "NewAwayScore":
		return "new_away_score"
	case "Reason":
		return "reason"
	case "ReversedEventID":
		return "reversed_event_id"
	default:
		return fe.Field()
	}
}

func constraintDetail(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a UUID"
	case "gte":
		return "must be >= " + fe.Param()
	case "clock":
		return "must match MM:SS"
	default:
		return "failed constraint " + fe.Tag()
	}
}

// OccurredAt enforces the offline-capture window: not in the future relative
// to now, and not older than MaxEventAge. The returned error distinguishes
// the two violations in its field detail.
func OccurredAt(occurredAt, now time.Time) error {
	if occurredAt.After(now) {
		return domain.NewValidation(domain.CodeInvalidTimestamp,
			"occurred_at %s is in the future", occurredAt.Format(time.RFC3339)).
			WithField("occurred_at", occurredAt.Format(time.RFC3339)).
			WithField("reason", "future")
	}
	if now.Sub(occurredAt) > MaxEventAge {
		return domain.NewValidation(domain.CodeInvalidTimestamp,
			"occurred_at %s is older than %s", occurredAt.Format(time.RFC3339), MaxEventAge).
			WithField("occurred_at", occurredAt.Format(time.RFC3339)).
			WithField("reason", "too_old")
	}
	return nil
}

// Coordinates checks optional spatial coordinates against the normalized
// [0.0, 1.0] playing surface.
func Coordinates(c *domain.SpatialCoordinates) error {
	if c == nil {
		return nil
	}
	if c.X < 0 || c.X > 1 {
		return domain.NewValidation(domain.CodeInvalidPayload,
			"spatial x %v outside [0.0, 1.0]", c.X).WithField("x", "must be within [0.0, 1.0]")
	}
	if c.Y < 0 || c.Y > 1 {
		return domain.NewValidation(domain.CodeInvalidPayload,
			"spatial y %v outside [0.0, 1.0]", c.Y).WithField("y", "must be within [0.0, 1.0]")
	}
	return nil
}
