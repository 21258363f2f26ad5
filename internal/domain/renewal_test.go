package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextRenewal(t *testing.T) {
	tests := []struct {
		name       string
		start      time.Time
		plan       Plan
		customDays int
		want       time.Time
	}{
		{"monthly", date(2025, 1, 15), PlanMonthly, 0, date(2025, 2, 15)},
		{"monthly end of month clamps forward", date(2025, 1, 31), PlanMonthly, 0, date(2025, 3, 3)},
		{"quarterly", date(2025, 1, 1), PlanQuarterly, 0, date(2025, 4, 1)},
		{"annual", date(2025, 6, 30), PlanAnnual, 0, date(2026, 6, 30)},
		{"annual across leap day", date(2024, 2, 29), PlanAnnual, 0, date(2025, 3, 1)},
		{"custom", date(2025, 1, 1), PlanCustom, 10, date(2025, 1, 11)},
		{"custom without period falls back to default", date(2025, 1, 1), PlanCustom, 0, date(2025, 1, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextRenewal(tt.start, tt.plan, tt.customDays))
		})
	}
}

func TestCatchUp(t *testing.T) {
	tests := []struct {
		name       string
		start      time.Time
		plan       Plan
		customDays int
		now        time.Time
		want       time.Time
	}{
		{
			name:  "monthly one missed cycle",
			start: date(2025, 1, 1),
			plan:  PlanMonthly,
			now:   date(2025, 2, 15),
			want:  date(2025, 3, 1),
		},
		{
			name:  "monthly many missed cycles",
			start: date(2024, 1, 1),
			plan:  PlanMonthly,
			now:   date(2025, 6, 10),
			want:  date(2025, 7, 1),
		},
		{
			name:  "date equal to now still advances",
			start: date(2025, 3, 1),
			plan:  PlanMonthly,
			now:   date(2025, 3, 1),
			want:  date(2025, 4, 1),
		},
		{
			name:  "future date is left untouched",
			start: date(2025, 5, 1),
			plan:  PlanMonthly,
			now:   date(2025, 4, 1),
			want:  date(2025, 5, 1),
		},
		{
			name:       "custom period skips in period-sized steps",
			start:      date(2025, 1, 1),
			plan:       PlanCustom,
			customDays: 7,
			now:        date(2025, 1, 16),
			want:       date(2025, 1, 22),
		},
		{
			name:  "intra-day time is ignored",
			start: date(2025, 1, 1),
			plan:  PlanMonthly,
			now:   time.Date(2025, 2, 1, 23, 59, 0, 0, time.UTC),
			want:  date(2025, 3, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CatchUp(tt.start, tt.plan, tt.customDays, tt.now))
		})
	}
}

func TestInitialRenewal(t *testing.T) {
	t.Run("trial is fixed at start plus trial days", func(t *testing.T) {
		got := InitialRenewal(PlanTrial, date(2026, 1, 1), date(2026, 1, 1), 7, 0)
		assert.Equal(t, date(2026, 1, 8), got)
	})

	t.Run("trial is not caught up even when overdue", func(t *testing.T) {
		got := InitialRenewal(PlanTrial, date(2025, 1, 1), date(2026, 1, 1), 7, 0)
		assert.Equal(t, date(2025, 1, 8), got)
	})

	t.Run("monthly catches up past missed cycles", func(t *testing.T) {
		got := InitialRenewal(PlanMonthly, date(2025, 1, 1), date(2025, 2, 15), 0, 0)
		assert.Equal(t, date(2025, 3, 1), got)
	})

	t.Run("annual lands in the future", func(t *testing.T) {
		got := InitialRenewal(PlanAnnual, date(2020, 3, 10), date(2025, 8, 1), 0, 0)
		assert.Equal(t, date(2026, 3, 10), got)
	})
}
