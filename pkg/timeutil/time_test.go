package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	in := time.Date(2025, 1, 29, 18, 42, 7, 123, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 29, 0, 0, 0, 0, time.UTC), StartOfDay(in))

	// non-UTC input is normalized before truncation
	loc := time.FixedZone("UTC+5", 5*3600)
	late := time.Date(2025, 1, 30, 2, 0, 0, 0, loc) // 2025-01-29 21:00 UTC
	assert.Equal(t, time.Date(2025, 1, 29, 0, 0, 0, 0, time.UTC), StartOfDay(late))
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-01-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 29, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("not a date")
	assert.Error(t, err)

	_, err = ParseDate("2025-01-29T09:00:00Z")
	assert.Error(t, err)
}

func TestSystemClockReturnsUTC(t *testing.T) {
	now := SystemClock{}.Now()
	assert.Equal(t, time.UTC, now.Location())
}
