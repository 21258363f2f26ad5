package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/renewly/reminder-service/internal/domain"
	"github.com/renewly/reminder-service/internal/domain/ports"
	"github.com/renewly/reminder-service/pkg/observability"
)

// DispatchResult summarizes one dispatcher run
type DispatchResult struct {
	Processed int
	Sent      int
	Failed    int
	Skipped   int
}

// Dispatcher finds due reminder occurrences, renders and delivers them,
// and commits the whole batch's mutations in one transaction. A failure on
// one occurrence never aborts its siblings: delivery failures become
// PendingEmail records and unexpected errors are logged and skipped.
type Dispatcher struct {
	db          ports.DBPort
	occRepo     ports.OccurrenceRepository
	subRepo     ports.SubscriptionRepository
	pendingRepo ports.PendingEmailRepository
	mailer      ports.Mailer
	renderer    ports.TemplateRenderer
	clock       ports.Clock
	logger      ports.Logger
	batchSize   int32
}

// NewDispatcher creates a new reminder dispatcher
func NewDispatcher(
	db ports.DBPort,
	occRepo ports.OccurrenceRepository,
	subRepo ports.SubscriptionRepository,
	pendingRepo ports.PendingEmailRepository,
	mailer ports.Mailer,
	renderer ports.TemplateRenderer,
	clock ports.Clock,
	logger ports.Logger,
	batchSize int32,
) *Dispatcher {
	return &Dispatcher{
		db:          db,
		occRepo:     occRepo,
		subRepo:     subRepo,
		pendingRepo: pendingRepo,
		mailer:      mailer,
		renderer:    renderer,
		clock:       clock,
		logger:      logger,
		batchSize:   batchSize,
	}
}

// Run processes one dispatch batch
func (d *Dispatcher) Run(ctx context.Context) (*DispatchResult, error) {
	now := d.clock.Now()
	result := &DispatchResult{}

	due, err := d.occRepo.ListDueReminders(ctx, d.db.GetDB(), now, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	result.Processed = len(due)
	if len(due) == 0 {
		return result, nil
	}

	d.logger.Info("dispatching reminder batch", ports.Int("count", len(due)))

	// Due items sharing a subscription share the same aggregate pointer, so
	// one Update per distinct subscription persists every occurrence change.
	dirty := make(map[string]*domain.Subscription)
	var pendings []*domain.PendingEmail

	for _, item := range due {
		outcome, pending := d.dispatchOne(ctx, item)
		switch outcome {
		case "sent":
			result.Sent++
			dirty[item.Subscription.ID().String()] = item.Subscription
		case "failed":
			result.Failed++
			if pending != nil {
				pendings = append(pendings, pending)
			}
		default:
			result.Skipped++
		}
		observability.RecordReminderDispatch(outcome)
	}

	err = d.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, sub := range dirty {
			if err := d.subRepo.Update(ctx, tx, sub); err != nil {
				return fmt.Errorf("save subscription %s: %w", sub.ID(), err)
			}
		}
		for _, pending := range pendings {
			if err := d.pendingRepo.Create(ctx, tx, pending); err != nil {
				return fmt.Errorf("enqueue pending email: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit dispatch batch: %w", err)
	}

	d.logger.Info("reminder batch completed",
		ports.Int("processed", result.Processed),
		ports.Int("sent", result.Sent),
		ports.Int("failed", result.Failed),
		ports.Int("skipped", result.Skipped))
	return result, nil
}

// dispatchOne renders and delivers a single reminder. Panics and
// unexpected errors are contained here so the batch keeps going.
func (d *Dispatcher) dispatchOne(ctx context.Context, item ports.DueReminder) (outcome string, pending *domain.PendingEmail) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while dispatching reminder",
				ports.String("occurrence_id", item.Occurrence.ID().String()),
				ports.String("panic", fmt.Sprint(r)))
			outcome = "skipped"
			pending = nil
		}
	}()

	now := d.clock.Now()
	sub := item.Subscription

	subject, body, err := d.renderer.RenderReminderEmail(ports.ReminderEmailData{
		UserName:         item.RecipientName,
		SubscriptionName: sub.Name(),
		Plan:             string(sub.Plan()),
		StartDate:        sub.StartDate(),
		RenewalDate:      sub.RenewalDate(),
		Cost:             sub.Cost(),
		Currency:         sub.Currency(),
		Period:           sub.PeriodDescription(),
		Note:             sub.Note(),
	})
	if err != nil {
		d.logger.Error("render reminder failed",
			ports.String("occurrence_id", item.Occurrence.ID().String()),
			ports.Err(err))
		return "skipped", nil
	}

	delivery := d.mailer.AttemptDelivery(ctx, item.RecipientEmail, subject, body)
	if !delivery.Success {
		d.logger.Warn("reminder delivery failed, queued for retry",
			ports.String("occurrence_id", item.Occurrence.ID().String()),
			ports.String("recipient", item.RecipientEmail),
			ports.String("error", delivery.ErrorMessage))
		// The occurrence stays unsent and remains due on the next run.
		return "failed", domain.NewPendingEmail(item.RecipientEmail, subject, body, delivery.ErrorMessage, now)
	}

	if err := item.Occurrence.MarkAsSent(now); err != nil {
		d.logger.Error("mark occurrence sent failed",
			ports.String("occurrence_id", item.Occurrence.ID().String()),
			ports.Err(err))
		return "skipped", nil
	}

	d.scheduleNext(item, now)
	return "sent", nil
}

// scheduleNext asks the owning rule for its next occurrence from the
// current renewal date; a past-dated or duplicate result is dropped.
func (d *Dispatcher) scheduleNext(item ports.DueReminder, now time.Time) {
	rule := item.Subscription.FindRule(item.RuleID)
	if rule == nil {
		return
	}

	next, err := rule.CreateOccurrence(item.Subscription.RenewalDate(), now)
	if err != nil || next == nil {
		return
	}
	if err := rule.AddOccurrence(next); err != nil {
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) && domain.IsConflictError(err) {
			// Same scheduled time already present, nothing to add.
			return
		}
		d.logger.Warn("attach next occurrence failed",
			ports.String("rule_id", rule.ID().String()),
			ports.Err(err))
	}
}
