package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/renewly/reminder-service/pkg/timeutil"
)

// MaxReminderRules caps how many reminder rules one subscription may own
const MaxReminderRules = 3

// earliestStartDate rejects obviously bogus historical start dates
var earliestStartDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Subscription is the aggregate root for a recurring subscription. All
// fields are unexported; state changes only through the factories and the
// named mutation operations, which enforce the aggregate's invariants and
// record domain events for the persisting unit of work to dispatch.
type Subscription struct {
	id               uuid.UUID
	ownerID          uuid.UUID
	name             string
	note             string
	plan             Plan
	customPeriodDays int
	trialPeriodDays  int
	startDate        time.Time
	renewalDate      time.Time
	cost             decimal.Decimal
	currency         string
	muted            bool
	rules            []*ReminderRule
	// sent occurrences whose rule was deleted; kept for audit, unsent
	// siblings are purged by the repository on save
	detached  []*ReminderOccurrence
	events    []Event
	createdAt time.Time
	updatedAt time.Time
}

// NewStandardSubscription creates a monthly, quarterly, or annual
// subscription. The initial renewal date is caught up from the start date
// so it is always strictly in the future.
func NewStandardSubscription(ownerID uuid.UUID, name string, plan Plan, startDate time.Time, cost decimal.Decimal, currency string, now time.Time) (*Subscription, error) {
	switch plan {
	case PlanMonthly, PlanQuarterly, PlanAnnual:
	default:
		return nil, NewDomainError(ErrorCodeValidationPlanInvalid, "standard subscriptions must be monthly, quarterly, or annual").
			WithDetail("plan", string(plan))
	}
	return newSubscription(ownerID, name, plan, startDate, cost, currency, now, 0, 0)
}

// NewTrialSubscription creates a trial subscription whose first renewal is
// fixed at startDate + trialPeriodDays.
func NewTrialSubscription(ownerID uuid.UUID, name string, startDate time.Time, trialPeriodDays int, cost decimal.Decimal, currency string, now time.Time) (*Subscription, error) {
	if trialPeriodDays <= 0 {
		return nil, NewDomainError(ErrorCodeValidationPeriod, "trial period must be a positive number of days").
			WithDetail("trial_period_days", trialPeriodDays)
	}
	sub, err := newSubscription(ownerID, name, PlanTrial, startDate, cost, currency, now, 0, trialPeriodDays)
	if err != nil {
		return nil, err
	}
	// A trial's renewal is fixed at creation rather than caught up, so it
	// must be explicitly validated against today.
	if sub.renewalDate.Before(timeutil.StartOfDay(now)) {
		return nil, NewDomainError(ErrorCodeValidationTrialExpired, "trial period ends in the past").
			WithDetail("trial_end", sub.renewalDate.Format("2006-01-02"))
	}
	return sub, nil
}

// NewCustomSubscription creates a subscription renewing every
// customPeriodDays days.
func NewCustomSubscription(ownerID uuid.UUID, name string, startDate time.Time, customPeriodDays int, cost decimal.Decimal, currency string, now time.Time) (*Subscription, error) {
	if customPeriodDays <= 0 {
		return nil, NewDomainError(ErrorCodeValidationPeriod, "custom period must be a positive number of days").
			WithDetail("custom_period_days", customPeriodDays)
	}
	return newSubscription(ownerID, name, PlanCustom, startDate, cost, currency, now, customPeriodDays, 0)
}

func newSubscription(ownerID uuid.UUID, name string, plan Plan, startDate time.Time, cost decimal.Decimal, currency string, now time.Time, customPeriodDays, trialPeriodDays int) (*Subscription, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewDomainError(ErrorCodeValidationNameRequired, "subscription name is required")
	}
	if cost.IsNegative() {
		return nil, NewDomainError(ErrorCodeValidationCost, "subscription cost cannot be negative").
			WithDetail("cost", cost.String())
	}
	startDate = timeutil.StartOfDay(startDate)
	if startDate.Before(earliestStartDate) {
		return nil, NewDomainError(ErrorCodeValidationStartDate, "start date is unreasonably far in the past").
			WithDetail("start_date", startDate.Format("2006-01-02"))
	}
	nowUTC := timeutil.ToUTC(now)
	return &Subscription{
		id:               uuid.New(),
		ownerID:          ownerID,
		name:             name,
		plan:             plan,
		customPeriodDays: customPeriodDays,
		trialPeriodDays:  trialPeriodDays,
		startDate:        startDate,
		renewalDate:      InitialRenewal(plan, startDate, now, trialPeriodDays, customPeriodDays),
		cost:             cost,
		currency:         currency,
		createdAt:        nowUTC,
		updatedAt:        nowUTC,
	}, nil
}

// RestoreSubscription rehydrates an aggregate from storage without
// re-running creation validation.
func RestoreSubscription(id, ownerID uuid.UUID, name, note string, plan Plan, customPeriodDays, trialPeriodDays int, startDate, renewalDate time.Time, cost decimal.Decimal, currency string, muted bool, rules []*ReminderRule, createdAt, updatedAt time.Time) *Subscription {
	return &Subscription{
		id:               id,
		ownerID:          ownerID,
		name:             name,
		note:             note,
		plan:             plan,
		customPeriodDays: customPeriodDays,
		trialPeriodDays:  trialPeriodDays,
		startDate:        timeutil.StartOfDay(startDate),
		renewalDate:      timeutil.StartOfDay(renewalDate),
		cost:             cost,
		currency:         currency,
		muted:            muted,
		rules:            rules,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
	}
}

// ID returns the subscription identity
func (s *Subscription) ID() uuid.UUID { return s.id }

// OwnerID returns the owning account's id
func (s *Subscription) OwnerID() uuid.UUID { return s.ownerID }

// Name returns the subscription name
func (s *Subscription) Name() string { return s.name }

// Note returns the free-form note shown in reminder emails
func (s *Subscription) Note() string { return s.note }

// Plan returns the billing cadence
func (s *Subscription) Plan() Plan { return s.plan }

// CustomPeriodDays returns the custom period length, 0 unless the plan is custom
func (s *Subscription) CustomPeriodDays() int { return s.customPeriodDays }

// TrialPeriodDays returns the trial length, 0 unless the plan is trial
func (s *Subscription) TrialPeriodDays() int { return s.trialPeriodDays }

// StartDate returns the date-only start of the subscription
func (s *Subscription) StartDate() time.Time { return s.startDate }

// RenewalDate returns the date-only next renewal
func (s *Subscription) RenewalDate() time.Time { return s.renewalDate }

// Cost returns the per-period cost
func (s *Subscription) Cost() decimal.Decimal { return s.cost }

// Currency returns the cost currency code
func (s *Subscription) Currency() string { return s.currency }

// Muted reports whether reminders are suppressed for this subscription
func (s *Subscription) Muted() bool { return s.muted }

// Rules returns the subscription's reminder rules
func (s *Subscription) Rules() []*ReminderRule { return s.rules }

// DetachedOccurrences returns sent occurrences whose rule was deleted
func (s *Subscription) DetachedOccurrences() []*ReminderOccurrence { return s.detached }

// CreatedAt returns the creation timestamp
func (s *Subscription) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns the last mutation timestamp
func (s *Subscription) UpdatedAt() time.Time { return s.updatedAt }

// PeriodDescription returns a human-readable billing period for emails
func (s *Subscription) PeriodDescription() string {
	return s.plan.PeriodDescription(s.customPeriodDays, s.trialPeriodDays)
}

// UpdateNextRenewalDate advances an overdue renewal date by whole periods
// until it is strictly after today. A trial converts to monthly exactly
// once, at the moment its trial period first becomes overdue; every later
// step uses monthly arithmetic. Emits RenewalChanged only when the stored
// date actually moves; a subscription already in the future is a no-op.
func (s *Subscription) UpdateNextRenewalDate(today time.Time) {
	today = timeutil.StartOfDay(today)
	next := s.renewalDate
	plan := s.plan
	for !next.After(today) {
		if plan == PlanTrial {
			plan = PlanMonthly
		}
		next = NextRenewal(next, plan, s.customPeriodDays)
	}
	if next.Equal(s.renewalDate) {
		return
	}
	s.plan = plan
	s.renewalDate = next
	s.touch()
	s.record(RenewalChanged{SubscriptionID: s.id, NewRenewalDate: next})
}

// ChangePlanAndStartDate switches the plan and/or start date. When any of
// plan, start date, custom period, or trial period actually change, the
// renewal date is recomputed from scratch and RenewalChanged is emitted.
func (s *Subscription) ChangePlanAndStartDate(plan Plan, startDate, today time.Time, customPeriodDays, trialPeriodDays int) error {
	if !plan.IsValid() {
		return NewDomainError(ErrorCodeValidationPlanInvalid, "unknown subscription plan").
			WithDetail("plan", string(plan))
	}
	if plan == PlanCustom && customPeriodDays <= 0 {
		return NewDomainError(ErrorCodeValidationPeriod, "custom period must be a positive number of days")
	}
	if plan == PlanTrial && trialPeriodDays <= 0 {
		return NewDomainError(ErrorCodeValidationPeriod, "trial period must be a positive number of days")
	}
	startDate = timeutil.StartOfDay(startDate)
	if startDate.Before(earliestStartDate) {
		return NewDomainError(ErrorCodeValidationStartDate, "start date is unreasonably far in the past").
			WithDetail("start_date", startDate.Format("2006-01-02"))
	}

	if plan == s.plan && startDate.Equal(s.startDate) &&
		customPeriodDays == s.customPeriodDays && trialPeriodDays == s.trialPeriodDays {
		return nil
	}

	s.plan = plan
	s.startDate = startDate
	s.customPeriodDays = customPeriodDays
	s.trialPeriodDays = trialPeriodDays
	s.renewalDate = InitialRenewal(plan, startDate, today, trialPeriodDays, customPeriodDays)
	s.touch()
	s.record(RenewalChanged{SubscriptionID: s.id, NewRenewalDate: s.renewalDate})
	return nil
}

// UpdatePricing changes the cost and currency
func (s *Subscription) UpdatePricing(cost decimal.Decimal, currency string) error {
	if cost.IsNegative() {
		return NewDomainError(ErrorCodeValidationCost, "subscription cost cannot be negative").
			WithDetail("cost", cost.String())
	}
	s.cost = cost
	s.currency = currency
	s.touch()
	return nil
}

// UpdateDetails changes the name and note
func (s *Subscription) UpdateDetails(name, note string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewDomainError(ErrorCodeValidationNameRequired, "subscription name is required")
	}
	s.name = name
	s.note = note
	s.touch()
	return nil
}

// SetMuted toggles reminder suppression for the subscription
func (s *Subscription) SetMuted(muted bool) {
	if s.muted == muted {
		return
	}
	s.muted = muted
	s.touch()
}

// AddReminderRule attaches a new reminder rule and immediately schedules
// its first occurrence from the current renewal date. When the computed
// time is already past, the rule is still added and no occurrence is
// scheduled for the current cycle.
func (s *Subscription) AddReminderRule(notifyAt TimeOfDay, daysBeforeRenewal int, now time.Time) (*ReminderRule, error) {
	if len(s.rules) >= MaxReminderRules {
		return nil, NewDomainError(ErrorCodeConflictReminderLimit, "subscription already has the maximum number of reminder rules").
			WithDetail("max_rules", MaxReminderRules)
	}
	for _, rule := range s.rules {
		if rule.matches(daysBeforeRenewal, notifyAt) {
			return nil, NewDomainError(ErrorCodeConflictReminderDuplicate, "a reminder rule with the same days and time already exists").
				WithDetail("days_before_renewal", daysBeforeRenewal).
				WithDetail("notify_at", notifyAt.String())
		}
	}
	maxDays := s.plan.DurationDays(s.customPeriodDays, s.trialPeriodDays)
	if daysBeforeRenewal < 1 || daysBeforeRenewal >= maxDays {
		return nil, NewDomainError(ErrorCodeValidationReminderDays, "days before renewal must be between 1 and the plan period").
			WithDetail("days_before_renewal", daysBeforeRenewal).
			WithDetail("plan_max_days", maxDays-1)
	}

	rule := newReminderRule(s.id, notifyAt, daysBeforeRenewal)
	occurrence, err := rule.CreateOccurrence(s.renewalDate, now)
	if err != nil {
		return nil, err
	}
	if occurrence != nil {
		if err := rule.AddOccurrence(occurrence); err != nil {
			return nil, err
		}
	}
	s.rules = append(s.rules, rule)
	s.touch()
	return rule, nil
}

// RemoveReminderRule deletes a rule. Its unsent occurrences are orphaned
// and purged on the next save; sent ones are kept for audit.
func (s *Subscription) RemoveReminderRule(ruleID uuid.UUID) error {
	for i, rule := range s.rules {
		if rule.ID() == ruleID {
			s.detached = append(s.detached, rule.detachOccurrences()...)
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			s.touch()
			return nil
		}
	}
	return NewDomainError(ErrorCodeReminderNotFound, "reminder rule not found").
		WithDetail("rule_id", ruleID.String())
}

// FindRule returns the rule with the given id, nil when absent
func (s *Subscription) FindRule(ruleID uuid.UUID) *ReminderRule {
	for _, rule := range s.rules {
		if rule.ID() == ruleID {
			return rule
		}
	}
	return nil
}

// ClearAllReminderRules strips unsent occurrences from every rule and then
// drops all rules. Used when the owning account is deactivated.
func (s *Subscription) ClearAllReminderRules() {
	if len(s.rules) == 0 {
		return
	}
	for _, rule := range s.rules {
		s.detached = append(s.detached, rule.detachOccurrences()...)
	}
	s.rules = nil
	s.touch()
}

// RegenerateOccurrences drops every unsent occurrence and computes one new
// occurrence per rule from the current renewal date, skipping rules whose
// computed time is already past. Invoked by the RenewalChanged handler.
func (s *Subscription) RegenerateOccurrences(now time.Time) error {
	for _, rule := range s.rules {
		rule.dropUnsentOccurrences()
		occurrence, err := rule.CreateOccurrence(s.renewalDate, now)
		if err != nil {
			return err
		}
		if occurrence == nil {
			continue
		}
		if err := rule.AddOccurrence(occurrence); err != nil {
			return err
		}
	}
	return nil
}

// PullEvents drains the pending event queue
func (s *Subscription) PullEvents() []Event {
	events := s.events
	s.events = nil
	return events
}

func (s *Subscription) record(event Event) {
	s.events = append(s.events, event)
}

func (s *Subscription) touch() {
	s.updatedAt = timeutil.Now()
}
