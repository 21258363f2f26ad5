package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/renewly/reminder-service/internal/domain"
	"github.com/renewly/reminder-service/internal/domain/ports"
)

// OccurrenceRepository implements the dispatcher's due-occurrence query
type OccurrenceRepository struct {
	db      ports.DBPort
	subRepo *SubscriptionRepository
}

// NewOccurrenceRepository creates a new occurrence repository
func NewOccurrenceRepository(db ports.DBPort, subRepo *SubscriptionRepository) *OccurrenceRepository {
	return &OccurrenceRepository{db: db, subRepo: subRepo}
}

// ListDueReminders returns unsent occurrences whose scheduled time has
// arrived, joined through a live rule, an unmuted subscription, and an
// active account. Each row carries the fully loaded aggregate; the
// occurrence pointer aliases the one inside the aggregate so batch
// mutations flow into the aggregate save.
func (r *OccurrenceRepository) ListDueReminders(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]ports.DueReminder, error) {
	q := db
	if q == nil {
		q = r.db.GetDB()
	}

	rows, err := q.Query(ctx, `
        SELECT o.id, o.rule_id, s.id, a.email, a.name
        FROM reminder_occurrences o
        JOIN reminder_rules r ON r.id = o.rule_id
        JOIN subscriptions s ON s.id = o.subscription_id
        JOIN accounts a ON a.id = s.owner_id
        WHERE o.sent = FALSE
          AND o.scheduled_at <= $1
          AND s.muted = FALSE
          AND a.active = TRUE
        ORDER BY o.scheduled_at
        LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	type dueRow struct {
		occurrenceID uuid.UUID
		ruleID       uuid.UUID
		subID        uuid.UUID
		email        string
		name         string
	}
	var raw []dueRow
	for rows.Next() {
		var dr dueRow
		if err := rows.Scan(&dr.occurrenceID, &dr.ruleID, &dr.subID, &dr.email, &dr.name); err != nil {
			return nil, fmt.Errorf("scan due reminder: %w", err)
		}
		raw = append(raw, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due reminders: %w", err)
	}
	rows.Close()

	// Load each distinct subscription aggregate once; multiple due
	// occurrences on one subscription must share the same instance.
	loaded := make(map[uuid.UUID]*domain.Subscription)
	due := make([]ports.DueReminder, 0, len(raw))
	for _, dr := range raw {
		sub, ok := loaded[dr.subID]
		if !ok {
			var err error
			sub, err = r.subRepo.GetByID(ctx, q, dr.subID)
			if err != nil {
				return nil, fmt.Errorf("load subscription %s: %w", dr.subID, err)
			}
			loaded[dr.subID] = sub
		}

		rule := sub.FindRule(dr.ruleID)
		if rule == nil {
			continue
		}
		occurrence := rule.FindOccurrence(dr.occurrenceID)
		if occurrence == nil {
			continue
		}
		due = append(due, ports.DueReminder{
			Occurrence:     occurrence,
			RuleID:         dr.ruleID,
			Subscription:   sub,
			RecipientEmail: dr.email,
			RecipientName:  dr.name,
		})
	}
	return due, nil
}
