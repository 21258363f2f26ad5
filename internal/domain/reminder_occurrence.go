package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/renewly/reminder-service/pkg/timeutil"
)

// ReminderOccurrence is one concrete, dated instance of a reminder rule.
// It is sent at most once. When its owning rule is deleted while the
// occurrence is still unsent, the rule reference becomes nil and the
// repository purges the record on the next save.
type ReminderOccurrence struct {
	id          uuid.UUID
	ruleID      *uuid.UUID
	scheduledAt time.Time
	sent        bool
	sentAt      *time.Time
}

// newReminderOccurrence constructs an occurrence, enforcing the invariant
// that the scheduled time is strictly after now.
func newReminderOccurrence(ruleID uuid.UUID, scheduledAt, now time.Time) (*ReminderOccurrence, error) {
	scheduledAt = timeutil.ToUTC(scheduledAt)
	if !scheduledAt.After(timeutil.ToUTC(now)) {
		return nil, NewDomainError(ErrorCodeValidationSchedulePast, "reminder occurrence must be scheduled in the future").
			WithDetail("scheduled_at", scheduledAt.Format(time.RFC3339))
	}
	rid := ruleID
	return &ReminderOccurrence{
		id:          uuid.New(),
		ruleID:      &rid,
		scheduledAt: scheduledAt,
	}, nil
}

// RestoreReminderOccurrence rehydrates an occurrence from storage
func RestoreReminderOccurrence(id uuid.UUID, ruleID *uuid.UUID, scheduledAt time.Time, sent bool, sentAt *time.Time) *ReminderOccurrence {
	return &ReminderOccurrence{
		id:          id,
		ruleID:      ruleID,
		scheduledAt: timeutil.ToUTC(scheduledAt),
		sent:        sent,
		sentAt:      sentAt,
	}
}

// ID returns the occurrence identity
func (o *ReminderOccurrence) ID() uuid.UUID { return o.id }

// RuleID returns the owning rule's id, nil when the rule was deleted
func (o *ReminderOccurrence) RuleID() *uuid.UUID { return o.ruleID }

// ScheduledAt returns the UTC timestamp at which the reminder is due
func (o *ReminderOccurrence) ScheduledAt() time.Time { return o.scheduledAt }

// Sent reports whether the reminder has been delivered
func (o *ReminderOccurrence) Sent() bool { return o.sent }

// SentAt returns the delivery timestamp, nil when unsent
func (o *ReminderOccurrence) SentAt() *time.Time { return o.sentAt }

// IsOrphaned reports whether the owning rule has been deleted
func (o *ReminderOccurrence) IsOrphaned() bool { return o.ruleID == nil }

// IsDue reports whether the occurrence is unsent and its scheduled time
// has arrived
func (o *ReminderOccurrence) IsDue(now time.Time) bool {
	return !o.sent && !o.scheduledAt.After(timeutil.ToUTC(now))
}

// MarkAsSent records delivery. Fails with a conflict when already sent so
// a double dispatch is always surfaced instead of silently overwritten.
func (o *ReminderOccurrence) MarkAsSent(now time.Time) error {
	if o.sent {
		return NewDomainError(ErrorCodeConflictAlreadySent, "reminder occurrence has already been sent").
			WithDetail("occurrence_id", o.id.String())
	}
	sentAt := timeutil.ToUTC(now)
	o.sent = true
	o.sentAt = &sentAt
	return nil
}

// orphan detaches the occurrence from its rule
func (o *ReminderOccurrence) orphan() { o.ruleID = nil }
