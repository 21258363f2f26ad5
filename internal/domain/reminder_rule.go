package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/renewly/reminder-service/pkg/timeutil"
)

// TimeOfDay is a UTC wall-clock time at which a reminder fires
type TimeOfDay struct {
	Hour   int
	Minute int
}

// NewTimeOfDay validates and constructs a TimeOfDay
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, NewDomainError(ErrorCodeValidationTimeOfDay, "notify time must be a valid UTC wall-clock time").
			WithDetail("hour", hour).
			WithDetail("minute", minute)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String returns the time in HH:MM form
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ReminderRule is a standing configuration owned by a subscription:
// notify daysBeforeRenewal days ahead of the renewal date, at notifyAt UTC.
// It holds the owning subscription's id rather than a pointer so the
// ownership chain stays one-directional.
type ReminderRule struct {
	id                uuid.UUID
	subscriptionID    uuid.UUID
	notifyAt          TimeOfDay
	daysBeforeRenewal int
	occurrences       []*ReminderOccurrence
}

func newReminderRule(subscriptionID uuid.UUID, notifyAt TimeOfDay, daysBeforeRenewal int) *ReminderRule {
	return &ReminderRule{
		id:                uuid.New(),
		subscriptionID:    subscriptionID,
		notifyAt:          notifyAt,
		daysBeforeRenewal: daysBeforeRenewal,
	}
}

// RestoreReminderRule rehydrates a rule and its occurrences from storage
func RestoreReminderRule(id, subscriptionID uuid.UUID, notifyAt TimeOfDay, daysBeforeRenewal int, occurrences []*ReminderOccurrence) *ReminderRule {
	return &ReminderRule{
		id:                id,
		subscriptionID:    subscriptionID,
		notifyAt:          notifyAt,
		daysBeforeRenewal: daysBeforeRenewal,
		occurrences:       occurrences,
	}
}

// ID returns the rule identity
func (r *ReminderRule) ID() uuid.UUID { return r.id }

// SubscriptionID returns the owning subscription's id
func (r *ReminderRule) SubscriptionID() uuid.UUID { return r.subscriptionID }

// NotifyAt returns the UTC time of day the reminder fires
func (r *ReminderRule) NotifyAt() TimeOfDay { return r.notifyAt }

// DaysBeforeRenewal returns how many days ahead of renewal the rule fires
func (r *ReminderRule) DaysBeforeRenewal() int { return r.daysBeforeRenewal }

// Occurrences returns the rule's scheduled occurrences
func (r *ReminderRule) Occurrences() []*ReminderOccurrence { return r.occurrences }

// CreateOccurrence computes the next occurrence for the given renewal date.
// The scheduled time is renewal date minus daysBeforeRenewal at notifyAt
// UTC. Returns nil (not an error) when that time is already at or before
// now: there is simply no occurrence for this cycle.
func (r *ReminderRule) CreateOccurrence(renewalDate, now time.Time) (*ReminderOccurrence, error) {
	day := timeutil.StartOfDay(renewalDate).AddDate(0, 0, -r.daysBeforeRenewal)
	scheduledAt := day.Add(time.Duration(r.notifyAt.Hour)*time.Hour + time.Duration(r.notifyAt.Minute)*time.Minute)
	if !scheduledAt.After(timeutil.ToUTC(now)) {
		return nil, nil
	}
	return newReminderOccurrence(r.id, scheduledAt, now)
}

// AddOccurrence attaches an occurrence, rejecting a duplicate scheduled time
func (r *ReminderRule) AddOccurrence(occurrence *ReminderOccurrence) error {
	for _, existing := range r.occurrences {
		if existing.ScheduledAt().Equal(occurrence.ScheduledAt()) {
			return NewDomainError(ErrorCodeConflictOccurrenceDuplicate, "an occurrence with the same scheduled time already exists").
				WithDetail("rule_id", r.id.String()).
				WithDetail("scheduled_at", occurrence.ScheduledAt().Format(time.RFC3339))
		}
	}
	r.occurrences = append(r.occurrences, occurrence)
	return nil
}

// FindOccurrence returns the occurrence with the given id, nil when absent
func (r *ReminderRule) FindOccurrence(id uuid.UUID) *ReminderOccurrence {
	for _, o := range r.occurrences {
		if o.ID() == id {
			return o
		}
	}
	return nil
}

// matches reports whether the rule has the given schedule pair
func (r *ReminderRule) matches(daysBeforeRenewal int, notifyAt TimeOfDay) bool {
	return r.daysBeforeRenewal == daysBeforeRenewal && r.notifyAt == notifyAt
}

// dropUnsentOccurrences removes every unsent occurrence, keeping sent ones
// for audit
func (r *ReminderRule) dropUnsentOccurrences() {
	kept := r.occurrences[:0]
	for _, o := range r.occurrences {
		if o.Sent() {
			kept = append(kept, o)
		}
	}
	r.occurrences = kept
}

// detachOccurrences orphans every occurrence ahead of rule deletion and
// returns the sent ones, which outlive the rule for audit
func (r *ReminderRule) detachOccurrences() []*ReminderOccurrence {
	var sent []*ReminderOccurrence
	for _, o := range r.occurrences {
		o.orphan()
		if o.Sent() {
			sent = append(sent, o)
		}
	}
	r.occurrences = nil
	return sent
}
