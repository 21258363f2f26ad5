package domain

import "strconv"

// Plan represents the billing cadence of a subscription
type Plan string

const (
	PlanMonthly   Plan = "monthly"
	PlanQuarterly Plan = "quarterly"
	PlanAnnual    Plan = "annual"
	PlanCustom    Plan = "custom"
	PlanTrial     Plan = "trial"
)

// DefaultCustomPeriodDays is used when a custom plan has no period configured
const DefaultCustomPeriodDays = 30

// IsValid returns true if the plan is one of the known cadences
func (p Plan) IsValid() bool {
	switch p {
	case PlanMonthly, PlanQuarterly, PlanAnnual, PlanCustom, PlanTrial:
		return true
	}
	return false
}

// DurationDays returns the plan's period length in days, used to bound how
// far ahead of a renewal a reminder may fire. Monthly uses the shortest
// possible month so a reminder stays valid in every cycle.
func (p Plan) DurationDays(customDays, trialDays int) int {
	switch p {
	case PlanMonthly:
		return 28
	case PlanQuarterly:
		return 90
	case PlanAnnual:
		return 365
	case PlanTrial:
		return trialDays
	case PlanCustom:
		if customDays > 0 {
			return customDays
		}
		return DefaultCustomPeriodDays
	default:
		return DefaultCustomPeriodDays
	}
}

// PeriodDescription returns a human-readable billing period description
func (p Plan) PeriodDescription(customDays, trialDays int) string {
	switch p {
	case PlanMonthly:
		return "1 month"
	case PlanQuarterly:
		return "3 months"
	case PlanAnnual:
		return "1 year"
	case PlanTrial:
		return strconv.Itoa(trialDays) + " day trial"
	case PlanCustom:
		if customDays <= 0 {
			customDays = DefaultCustomPeriodDays
		}
		return strconv.Itoa(customDays) + " days"
	default:
		return string(p)
	}
}
