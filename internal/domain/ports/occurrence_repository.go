package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/renewly/reminder-service/internal/domain"
)

// DueReminder is one dispatchable reminder: the due occurrence together
// with its owning rule id, the fully loaded subscription aggregate, and
// the owning account's contact details. The occurrence pointer aliases the
// one held inside the aggregate, so marking it sent mutates the aggregate
// that the batch later saves.
type DueReminder struct {
	Occurrence     *domain.ReminderOccurrence
	RuleID         uuid.UUID
	Subscription   *domain.Subscription
	RecipientEmail string
	RecipientName  string
}

// OccurrenceRepository serves the dispatcher's due-occurrence query:
// unsent occurrences scheduled at or before now, whose rule still exists,
// whose subscription is not muted, and whose owning account is active.
type OccurrenceRepository interface {
	ListDueReminders(ctx context.Context, db DBTX, now time.Time, limit int32) ([]DueReminder, error)
}
