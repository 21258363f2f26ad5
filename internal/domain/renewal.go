package domain

import (
	"time"

	"github.com/renewly/reminder-service/pkg/timeutil"
)

// NextRenewal advances a renewal date by exactly one plan period.
func NextRenewal(date time.Time, plan Plan, customDays int) time.Time {
	switch plan {
	case PlanMonthly:
		return date.AddDate(0, 1, 0)
	case PlanQuarterly:
		return date.AddDate(0, 3, 0)
	case PlanAnnual:
		return date.AddDate(1, 0, 0)
	case PlanCustom:
		if customDays <= 0 {
			customDays = DefaultCustomPeriodDays
		}
		return date.AddDate(0, 0, customDays)
	default:
		return date.AddDate(0, 1, 0)
	}
}

// CatchUp advances a renewal date by whole periods until it is strictly
// after now. Each step strictly increases the date, so the loop terminates.
func CatchUp(date time.Time, plan Plan, customDays int, now time.Time) time.Time {
	date = timeutil.StartOfDay(date)
	now = timeutil.StartOfDay(now)
	for !date.After(now) {
		date = NextRenewal(date, plan, customDays)
	}
	return date
}

// InitialRenewal computes the first renewal date for a new subscription.
// A trial's first renewal is fixed at startDate + trialDays and is not
// caught up to now; the factory validates it separately. All other plans
// catch up from the start date so the renewal lands in the future.
func InitialRenewal(plan Plan, startDate, now time.Time, trialDays, customDays int) time.Time {
	if plan == PlanTrial {
		return timeutil.StartOfDay(startDate).AddDate(0, 0, trialDays)
	}
	return CatchUp(startDate, plan, customDays, now)
}
