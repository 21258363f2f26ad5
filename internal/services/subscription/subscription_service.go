package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/renewly/reminder-service/internal/domain"
	"github.com/renewly/reminder-service/internal/domain/ports"
)

// Service implements the subscription use cases: creation, edits, reminder
// rule management, and deletion. Every mutation saves the whole aggregate
// in one transaction and dispatches drained renewal events inside it.
type Service struct {
	db             ports.DBPort
	subRepo        ports.SubscriptionRepository
	renewalHandler ports.RenewalChangedHandler
	clock          ports.Clock
	logger         ports.Logger
}

// NewService creates a new subscription service
func NewService(
	db ports.DBPort,
	subRepo ports.SubscriptionRepository,
	renewalHandler ports.RenewalChangedHandler,
	clock ports.Clock,
	logger ports.Logger,
) *Service {
	return &Service{
		db:             db,
		subRepo:        subRepo,
		renewalHandler: renewalHandler,
		clock:          clock,
		logger:         logger,
	}
}

// CreateStandardRequest carries the fields for a monthly, quarterly or
// annual subscription
type CreateStandardRequest struct {
	OwnerID   uuid.UUID
	Name      string
	Plan      domain.Plan
	StartDate time.Time
	Cost      decimal.Decimal
	Currency  string
}

// CreateTrialRequest carries the fields for a trial subscription
type CreateTrialRequest struct {
	OwnerID         uuid.UUID
	Name            string
	StartDate       time.Time
	TrialPeriodDays int
	Cost            decimal.Decimal
	Currency        string
}

// CreateCustomRequest carries the fields for a custom-period subscription
type CreateCustomRequest struct {
	OwnerID          uuid.UUID
	Name             string
	StartDate        time.Time
	CustomPeriodDays int
	Cost             decimal.Decimal
	Currency         string
}

// CreateStandard creates a monthly, quarterly or annual subscription
func (s *Service) CreateStandard(ctx context.Context, req CreateStandardRequest) (*domain.Subscription, error) {
	sub, err := domain.NewStandardSubscription(req.OwnerID, req.Name, req.Plan, req.StartDate, req.Cost, req.Currency, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return s.create(ctx, sub)
}

// CreateTrial creates a trial subscription
func (s *Service) CreateTrial(ctx context.Context, req CreateTrialRequest) (*domain.Subscription, error) {
	sub, err := domain.NewTrialSubscription(req.OwnerID, req.Name, req.StartDate, req.TrialPeriodDays, req.Cost, req.Currency, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return s.create(ctx, sub)
}

// CreateCustom creates a custom-period subscription
func (s *Service) CreateCustom(ctx context.Context, req CreateCustomRequest) (*domain.Subscription, error) {
	sub, err := domain.NewCustomSubscription(req.OwnerID, req.Name, req.StartDate, req.CustomPeriodDays, req.Cost, req.Currency, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return s.create(ctx, sub)
}

func (s *Service) create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.subRepo.Create(ctx, tx, sub); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("create subscription failed",
			ports.String("owner_id", sub.OwnerID().String()),
			ports.String("name", sub.Name()),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("subscription created",
		ports.String("subscription_id", sub.ID().String()),
		ports.String("plan", string(sub.Plan())),
		ports.String("renewal_date", sub.RenewalDate().Format(time.DateOnly)))
	return sub, nil
}

// Get retrieves a subscription aggregate by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return s.subRepo.GetByID(ctx, s.db.GetDB(), id)
}

// ListByOwner lists an account's subscriptions
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Subscription, error) {
	return s.subRepo.ListByOwner(ctx, s.db.GetDB(), ownerID)
}

// ChangePlanRequest carries a plan/start-date change
type ChangePlanRequest struct {
	SubscriptionID   uuid.UUID
	Plan             domain.Plan
	StartDate        time.Time
	CustomPeriodDays int
	TrialPeriodDays  int
}

// ChangePlanAndStartDate switches a subscription's plan and/or start date
// and recomputes its renewal date
func (s *Service) ChangePlanAndStartDate(ctx context.Context, req ChangePlanRequest) (*domain.Subscription, error) {
	return s.mutate(ctx, req.SubscriptionID, "change plan", func(sub *domain.Subscription, now time.Time) error {
		return sub.ChangePlanAndStartDate(req.Plan, req.StartDate, now, req.CustomPeriodDays, req.TrialPeriodDays)
	})
}

// UpdatePricing changes a subscription's cost and currency
func (s *Service) UpdatePricing(ctx context.Context, id uuid.UUID, cost decimal.Decimal, currency string) (*domain.Subscription, error) {
	return s.mutate(ctx, id, "update pricing", func(sub *domain.Subscription, _ time.Time) error {
		return sub.UpdatePricing(cost, currency)
	})
}

// UpdateDetails changes a subscription's name and note
func (s *Service) UpdateDetails(ctx context.Context, id uuid.UUID, name, note string) (*domain.Subscription, error) {
	return s.mutate(ctx, id, "update details", func(sub *domain.Subscription, _ time.Time) error {
		return sub.UpdateDetails(name, note)
	})
}

// SetMuted mutes or unmutes a subscription's reminders
func (s *Service) SetMuted(ctx context.Context, id uuid.UUID, muted bool) (*domain.Subscription, error) {
	return s.mutate(ctx, id, "set muted", func(sub *domain.Subscription, _ time.Time) error {
		sub.SetMuted(muted)
		return nil
	})
}

// AddReminderRuleRequest carries a new reminder rule
type AddReminderRuleRequest struct {
	SubscriptionID    uuid.UUID
	NotifyHour        int
	NotifyMinute      int
	DaysBeforeRenewal int
}

// AddReminderRule attaches a reminder rule to a subscription and schedules
// its first occurrence when that occurrence is still in the future
func (s *Service) AddReminderRule(ctx context.Context, req AddReminderRuleRequest) (*domain.Subscription, error) {
	notifyAt, err := domain.NewTimeOfDay(req.NotifyHour, req.NotifyMinute)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, req.SubscriptionID, "add reminder rule", func(sub *domain.Subscription, now time.Time) error {
		_, err := sub.AddReminderRule(notifyAt, req.DaysBeforeRenewal, now)
		return err
	})
}

// RemoveReminderRule detaches a rule; its unsent occurrences are purged by
// the save, sent ones are retained for audit
func (s *Service) RemoveReminderRule(ctx context.Context, subscriptionID, ruleID uuid.UUID) (*domain.Subscription, error) {
	return s.mutate(ctx, subscriptionID, "remove reminder rule", func(sub *domain.Subscription, _ time.Time) error {
		return sub.RemoveReminderRule(ruleID)
	})
}

// Delete removes a subscription and everything it owns
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.subRepo.Delete(ctx, tx, id)
	})
	if err != nil {
		s.logger.Error("delete subscription failed",
			ports.String("subscription_id", id.String()),
			ports.Err(err))
		return err
	}

	s.logger.Info("subscription deleted", ports.String("subscription_id", id.String()))
	return nil
}

// DeactivateAccountSubscriptions clears the reminder rules on all of an
// account's subscriptions. Called when the owning account is deactivated so
// no further occurrences are generated; already-sent history is kept.
func (s *Service) DeactivateAccountSubscriptions(ctx context.Context, ownerID uuid.UUID) error {
	subs, err := s.subRepo.ListByOwner(ctx, s.db.GetDB(), ownerID)
	if err != nil {
		return fmt.Errorf("list subscriptions for owner: %w", err)
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, sub := range subs {
			sub.ClearAllReminderRules()
			if err := s.subRepo.Update(ctx, tx, sub); err != nil {
				return fmt.Errorf("clear reminders for subscription %s: %w", sub.ID(), err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("deactivate account cleanup failed",
			ports.String("owner_id", ownerID.String()),
			ports.Err(err))
		return err
	}

	s.logger.Info("account subscriptions deactivated",
		ports.String("owner_id", ownerID.String()),
		ports.Int("count", len(subs)))
	return nil
}

// mutate loads the aggregate, applies fn, and saves it in one transaction,
// dispatching drained renewal events before the save commits.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, action string, fn func(sub *domain.Subscription, now time.Time) error) (*domain.Subscription, error) {
	sub, err := s.subRepo.GetByID(ctx, s.db.GetDB(), id)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	now := s.clock.Now()
	if err := fn(sub, now); err != nil {
		return nil, err
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.dispatchEvents(ctx, sub, now); err != nil {
			return err
		}
		if err := s.subRepo.Update(ctx, tx, sub); err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error(action+" failed",
			ports.String("subscription_id", id.String()),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info(action,
		ports.String("subscription_id", sub.ID().String()),
		ports.String("renewal_date", sub.RenewalDate().Format(time.DateOnly)))
	return sub, nil
}

func (s *Service) dispatchEvents(ctx context.Context, sub *domain.Subscription, now time.Time) error {
	for _, event := range sub.PullEvents() {
		switch event.(type) {
		case domain.RenewalChanged:
			if err := s.renewalHandler.HandleRenewalChanged(ctx, sub, now); err != nil {
				return fmt.Errorf("handle renewal changed: %w", err)
			}
		default:
			s.logger.Warn("unhandled domain event", ports.String("event", event.EventName()))
		}
	}
	return nil
}
