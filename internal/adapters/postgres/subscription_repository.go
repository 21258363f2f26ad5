package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/renewly/reminder-service/internal/domain"
	"github.com/renewly/reminder-service/internal/domain/ports"
)

// SubscriptionRepository implements ports.SubscriptionRepository with raw
// pgx queries. Saves are whole-aggregate: the subscription row, its rules,
// and its occurrences are written together and unsent occurrences the
// aggregate dropped are removed in the same pass.
type SubscriptionRepository struct {
	db ports.DBPort
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db ports.DBPort) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create persists a new subscription aggregate
func (r *SubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, sub *domain.Subscription) error {
	q := r.executor(tx)

	cost, err := decimalToNumeric(sub.Cost())
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
        INSERT INTO subscriptions (
            id, owner_id, name, note, plan, custom_period_days, trial_period_days,
            start_date, renewal_date, cost, currency, muted, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sub.ID(), sub.OwnerID(), sub.Name(), sub.Note(), string(sub.Plan()),
		sub.CustomPeriodDays(), sub.TrialPeriodDays(),
		pgtype.Date{Time: sub.StartDate(), Valid: true},
		pgtype.Date{Time: sub.RenewalDate(), Valid: true},
		cost, sub.Currency(), sub.Muted(), sub.CreatedAt(), sub.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}

	return r.saveRules(ctx, q, sub)
}

// Update saves the whole aggregate: subscription row, rules (removed ones
// deleted, occurrences orphaned by the FK), then the unsent occurrences
// the aggregate no longer holds are deleted and the kept ones upserted.
func (r *SubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, sub *domain.Subscription) error {
	q := r.executor(tx)

	cost, err := decimalToNumeric(sub.Cost())
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
        UPDATE subscriptions
        SET name = $2, note = $3, plan = $4, custom_period_days = $5,
            trial_period_days = $6, start_date = $7, renewal_date = $8,
            cost = $9, currency = $10, muted = $11, updated_at = $12
        WHERE id = $1`,
		sub.ID(), sub.Name(), sub.Note(), string(sub.Plan()),
		sub.CustomPeriodDays(), sub.TrialPeriodDays(),
		pgtype.Date{Time: sub.StartDate(), Valid: true},
		pgtype.Date{Time: sub.RenewalDate(), Valid: true},
		cost, sub.Currency(), sub.Muted(), sub.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	keptRuleIDs := make([]uuid.UUID, 0, len(sub.Rules()))
	for _, rule := range sub.Rules() {
		keptRuleIDs = append(keptRuleIDs, rule.ID())
	}
	// Deleting a rule sets rule_id NULL on its occurrences (FK), matching
	// the aggregate's orphaning of detached occurrences.
	_, err = q.Exec(ctx, `
        DELETE FROM reminder_rules
        WHERE subscription_id = $1 AND NOT (id = ANY($2))`,
		sub.ID(), keptRuleIDs,
	)
	if err != nil {
		return fmt.Errorf("delete removed reminder rules: %w", err)
	}

	// Unsent rows absent from the aggregate are stale: regeneration drops
	// them in memory and may reuse their scheduled_at slot under a new id,
	// and the dispatcher reads storage directly. Delete them before the
	// upserts. Sent rows stay for audit whatever happened to their rule.
	keptOccurrenceIDs := make([]uuid.UUID, 0)
	for _, rule := range sub.Rules() {
		for _, occ := range rule.Occurrences() {
			keptOccurrenceIDs = append(keptOccurrenceIDs, occ.ID())
		}
	}
	_, err = q.Exec(ctx, `
        DELETE FROM reminder_occurrences
        WHERE subscription_id = $1 AND sent = FALSE AND NOT (id = ANY($2))`,
		sub.ID(), keptOccurrenceIDs,
	)
	if err != nil {
		return fmt.Errorf("delete stale occurrences: %w", err)
	}

	return r.saveRules(ctx, q, sub)
}

func (r *SubscriptionRepository) saveRules(ctx context.Context, q ports.DBTX, sub *domain.Subscription) error {
	for _, rule := range sub.Rules() {
		_, err := q.Exec(ctx, `
            INSERT INTO reminder_rules (id, subscription_id, notify_hour, notify_minute, days_before_renewal)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (id) DO UPDATE
            SET notify_hour = EXCLUDED.notify_hour,
                notify_minute = EXCLUDED.notify_minute,
                days_before_renewal = EXCLUDED.days_before_renewal`,
			rule.ID(), sub.ID(), rule.NotifyAt().Hour, rule.NotifyAt().Minute, rule.DaysBeforeRenewal(),
		)
		if err != nil {
			return fmt.Errorf("upsert reminder rule: %w", err)
		}

		for _, occ := range rule.Occurrences() {
			if err := r.upsertOccurrence(ctx, q, sub.ID(), occ); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *SubscriptionRepository) upsertOccurrence(ctx context.Context, q ports.DBTX, subID uuid.UUID, occ *domain.ReminderOccurrence) error {
	_, err := q.Exec(ctx, `
        INSERT INTO reminder_occurrences (id, rule_id, subscription_id, scheduled_at, sent, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE
        SET rule_id = EXCLUDED.rule_id,
            sent = EXCLUDED.sent,
            sent_at = EXCLUDED.sent_at`,
		occ.ID(), occ.RuleID(), subID, occ.ScheduledAt(), occ.Sent(), occ.SentAt(),
	)
	if err != nil {
		return fmt.Errorf("upsert reminder occurrence: %w", err)
	}
	return nil
}

// Delete removes a subscription; rules and occurrences cascade
func (r *SubscriptionRepository) Delete(ctx context.Context, tx ports.DBTX, id uuid.UUID) error {
	q := r.executor(tx)
	tag, err := q.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// GetByID retrieves a subscription aggregate by its ID
func (r *SubscriptionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Subscription, error) {
	q := r.executor(db)

	row := q.QueryRow(ctx, `
        SELECT id, owner_id, name, note, plan, custom_period_days, trial_period_days,
               start_date, renewal_date, cost, currency, muted, created_at, updated_at
        FROM subscriptions
        WHERE id = $1`, id)

	sub, err := r.scanSubscription(ctx, q, row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// ListByOwner lists all subscriptions for an owning account
func (r *SubscriptionRepository) ListByOwner(ctx context.Context, db ports.DBTX, ownerID uuid.UUID) ([]*domain.Subscription, error) {
	q := r.executor(db)
	return r.querySubscriptions(ctx, q, `
        SELECT id, owner_id, name, note, plan, custom_period_days, trial_period_days,
               start_date, renewal_date, cost, currency, muted, created_at, updated_at
        FROM subscriptions
        WHERE owner_id = $1
        ORDER BY created_at`, ownerID)
}

// ListDueForRenewal lists subscriptions whose renewal date is on or before
// today, for the renewal sweeper
func (r *SubscriptionRepository) ListDueForRenewal(ctx context.Context, db ports.DBTX, today time.Time, limit int32) ([]*domain.Subscription, error) {
	q := r.executor(db)
	return r.querySubscriptions(ctx, q, `
        SELECT id, owner_id, name, note, plan, custom_period_days, trial_period_days,
               start_date, renewal_date, cost, currency, muted, created_at, updated_at
        FROM subscriptions
        WHERE renewal_date <= $1
        ORDER BY renewal_date
        LIMIT $2`,
		pgtype.Date{Time: today, Valid: true}, limit)
}

func (r *SubscriptionRepository) querySubscriptions(ctx context.Context, q ports.DBTX, sql string, args ...interface{}) ([]*domain.Subscription, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	type subRow struct {
		id, ownerID                uuid.UUID
		name, note, plan, currency string
		customDays, trialDays      int
		startDate, renewalDate     pgtype.Date
		cost                       pgtype.Numeric
		muted                      bool
		createdAt, updatedAt       time.Time
	}

	var raw []subRow
	for rows.Next() {
		var sr subRow
		if err := rows.Scan(&sr.id, &sr.ownerID, &sr.name, &sr.note, &sr.plan,
			&sr.customDays, &sr.trialDays, &sr.startDate, &sr.renewalDate,
			&sr.cost, &sr.currency, &sr.muted, &sr.createdAt, &sr.updatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		raw = append(raw, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	rows.Close()

	subs := make([]*domain.Subscription, 0, len(raw))
	for _, sr := range raw {
		cost, err := numericToDecimal(sr.cost)
		if err != nil {
			return nil, err
		}
		rules, err := r.loadRules(ctx, q, sr.id)
		if err != nil {
			return nil, err
		}
		subs = append(subs, domain.RestoreSubscription(
			sr.id, sr.ownerID, sr.name, sr.note, domain.Plan(sr.plan),
			sr.customDays, sr.trialDays, sr.startDate.Time, sr.renewalDate.Time,
			cost, sr.currency, sr.muted, rules, sr.createdAt, sr.updatedAt,
		))
	}
	return subs, nil
}

func (r *SubscriptionRepository) scanSubscription(ctx context.Context, q ports.DBTX, row pgx.Row) (*domain.Subscription, error) {
	var (
		id, ownerID                uuid.UUID
		name, note, plan, currency string
		customDays, trialDays      int
		startDate, renewalDate     pgtype.Date
		rawCost                    pgtype.Numeric
		muted                      bool
		createdAt, updatedAt       time.Time
	)
	if err := row.Scan(&id, &ownerID, &name, &note, &plan, &customDays, &trialDays,
		&startDate, &renewalDate, &rawCost, &currency, &muted, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	cost, err := numericToDecimal(rawCost)
	if err != nil {
		return nil, err
	}
	rules, err := r.loadRules(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return domain.RestoreSubscription(
		id, ownerID, name, note, domain.Plan(plan), customDays, trialDays,
		startDate.Time, renewalDate.Time, cost, currency, muted, rules,
		createdAt, updatedAt,
	), nil
}

func (r *SubscriptionRepository) loadRules(ctx context.Context, q ports.DBTX, subID uuid.UUID) ([]*domain.ReminderRule, error) {
	occurrences, err := r.loadOccurrences(ctx, q, subID)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
        SELECT id, notify_hour, notify_minute, days_before_renewal
        FROM reminder_rules
        WHERE subscription_id = $1
        ORDER BY days_before_renewal, notify_hour, notify_minute`, subID)
	if err != nil {
		return nil, fmt.Errorf("query reminder rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.ReminderRule
	for rows.Next() {
		var (
			id           uuid.UUID
			hour, minute int
			daysBefore   int
		)
		if err := rows.Scan(&id, &hour, &minute, &daysBefore); err != nil {
			return nil, fmt.Errorf("scan reminder rule: %w", err)
		}
		rules = append(rules, domain.RestoreReminderRule(
			id, subID, domain.TimeOfDay{Hour: hour, Minute: minute}, daysBefore, occurrences[id],
		))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminder rules: %w", err)
	}
	return rules, nil
}

func (r *SubscriptionRepository) loadOccurrences(ctx context.Context, q ports.DBTX, subID uuid.UUID) (map[uuid.UUID][]*domain.ReminderOccurrence, error) {
	rows, err := q.Query(ctx, `
        SELECT id, rule_id, scheduled_at, sent, sent_at
        FROM reminder_occurrences
        WHERE subscription_id = $1 AND rule_id IS NOT NULL
        ORDER BY scheduled_at`, subID)
	if err != nil {
		return nil, fmt.Errorf("query reminder occurrences: %w", err)
	}
	defer rows.Close()

	byRule := make(map[uuid.UUID][]*domain.ReminderOccurrence)
	for rows.Next() {
		var (
			id          uuid.UUID
			ruleID      *uuid.UUID
			scheduledAt time.Time
			sent        bool
			sentAt      *time.Time
		)
		if err := rows.Scan(&id, &ruleID, &scheduledAt, &sent, &sentAt); err != nil {
			return nil, fmt.Errorf("scan reminder occurrence: %w", err)
		}
		occ := domain.RestoreReminderOccurrence(id, ruleID, scheduledAt, sent, sentAt)
		if ruleID != nil {
			byRule[*ruleID] = append(byRule[*ruleID], occ)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminder occurrences: %w", err)
	}
	return byRule, nil
}
