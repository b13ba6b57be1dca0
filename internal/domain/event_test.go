package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortKeyOrdersByTimeThenID(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

	keys := []string{
		SortKey(base.Add(2*time.Second), "aaa"),
		SortKey(base, "zzz"),
		SortKey(base, "aaa"),
		SortKey(base.Add(time.Second), "mmm"),
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	assert.Equal(t, []string{keys[2], keys[1], keys[3], keys[0]}, sorted)
}

func TestSortKeyIsFixedWidth(t *testing.T) {
	early := SortKey(time.UnixMilli(1), "e")
	late := SortKey(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC), "e")
	assert.Len(t, early, len(late))
	assert.Less(t, early, late)
}

func TestKnownEventType(t *testing.T) {
	for _, known := range []EventType{
		EventGameStarted, EventGoalScored, EventPenaltyAssessed, EventShotOnGoal,
		EventPeriodEnded, EventGameFinalized, EventGameCancelled, EventScoreCorrected,
		EventReversal,
	} {
		assert.True(t, KnownEventType(known), "%s", known)
	}
	assert.False(t, KnownEventType("GOAL_DISALLOWED"))
	assert.False(t, KnownEventType(""))
}

func TestReversibleEventType(t *testing.T) {
	assert.True(t, ReversibleEventType(EventGoalScored))
	assert.True(t, ReversibleEventType(EventPenaltyAssessed))
	assert.True(t, ReversibleEventType(EventShotOnGoal))

	assert.False(t, ReversibleEventType(EventGameStarted))
	assert.False(t, ReversibleEventType(EventGameFinalized))
	assert.False(t, ReversibleEventType(EventScoreCorrected))
	assert.False(t, ReversibleEventType(EventReversal))
}
