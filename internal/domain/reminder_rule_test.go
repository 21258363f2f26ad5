package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeOfDay(t *testing.T) {
	tod, err := NewTimeOfDay(9, 5)
	require.NoError(t, err)
	assert.Equal(t, "09:05", tod.String())

	for _, pair := range [][2]int{{-1, 0}, {24, 0}, {0, -1}, {0, 60}} {
		_, err := NewTimeOfDay(pair[0], pair[1])
		require.Error(t, err, "hour=%d minute=%d", pair[0], pair[1])
		assert.Equal(t, ErrorCodeValidationTimeOfDay, GetErrorCode(err))
	}
}

func TestCreateOccurrence(t *testing.T) {
	rule := newReminderRule(uuid.New(), TimeOfDay{Hour: 9, Minute: 30}, 3)

	t.Run("schedules days before renewal at the notify time", func(t *testing.T) {
		occ, err := rule.CreateOccurrence(date(2025, 2, 1), date(2025, 1, 10))
		require.NoError(t, err)
		require.NotNil(t, occ)
		assert.Equal(t, time.Date(2025, 1, 29, 9, 30, 0, 0, time.UTC), occ.ScheduledAt())
		require.NotNil(t, occ.RuleID())
		assert.Equal(t, rule.ID(), *occ.RuleID())
	})

	t.Run("returns nil when the slot is already past", func(t *testing.T) {
		occ, err := rule.CreateOccurrence(date(2025, 2, 1), date(2025, 1, 30))
		require.NoError(t, err)
		assert.Nil(t, occ)
	})

	t.Run("returns nil when the slot is exactly now", func(t *testing.T) {
		occ, err := rule.CreateOccurrence(date(2025, 2, 1), time.Date(2025, 1, 29, 9, 30, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Nil(t, occ)
	})
}

func TestAddOccurrence(t *testing.T) {
	rule := newReminderRule(uuid.New(), TimeOfDay{Hour: 9, Minute: 0}, 3)

	occ, err := rule.CreateOccurrence(date(2025, 2, 1), date(2025, 1, 10))
	require.NoError(t, err)
	require.NoError(t, rule.AddOccurrence(occ))

	dup, err := rule.CreateOccurrence(date(2025, 2, 1), date(2025, 1, 10))
	require.NoError(t, err)
	err = rule.AddOccurrence(dup)
	require.Error(t, err)
	assert.Equal(t, ErrorCodeConflictOccurrenceDuplicate, GetErrorCode(err))
	assert.Len(t, rule.Occurrences(), 1)
}

func TestFindOccurrence(t *testing.T) {
	rule := newReminderRule(uuid.New(), TimeOfDay{Hour: 9, Minute: 0}, 3)
	occ, err := rule.CreateOccurrence(date(2025, 2, 1), date(2025, 1, 10))
	require.NoError(t, err)
	require.NoError(t, rule.AddOccurrence(occ))

	assert.Equal(t, occ, rule.FindOccurrence(occ.ID()))
	assert.Nil(t, rule.FindOccurrence(uuid.New()))
}
