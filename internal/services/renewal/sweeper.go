// Package renewal keeps subscription renewal dates current as real time
// advances.
package renewal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/renewly/reminder-service/internal/domain"
	"github.com/renewly/reminder-service/internal/domain/ports"
	"github.com/renewly/reminder-service/pkg/observability"
)

// SweepResult summarizes one sweeper run
type SweepResult struct {
	Processed int
	Advanced  int
	Failed    int
}

// Sweeper advances every overdue renewal date by whole periods until it is
// in the future, regenerating reminder occurrences for each moved date.
// Trial subscriptions convert to monthly on their first overdue sweep.
type Sweeper struct {
	db             ports.DBPort
	subRepo        ports.SubscriptionRepository
	renewalHandler ports.RenewalChangedHandler
	clock          ports.Clock
	logger         ports.Logger
	batchSize      int32
}

// NewSweeper creates a new renewal sweeper
func NewSweeper(
	db ports.DBPort,
	subRepo ports.SubscriptionRepository,
	renewalHandler ports.RenewalChangedHandler,
	clock ports.Clock,
	logger ports.Logger,
	batchSize int32,
) *Sweeper {
	return &Sweeper{
		db:             db,
		subRepo:        subRepo,
		renewalHandler: renewalHandler,
		clock:          clock,
		logger:         logger,
		batchSize:      batchSize,
	}
}

// Run processes one sweep batch
func (s *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	now := s.clock.Now()
	result := &SweepResult{}

	due, err := s.subRepo.ListDueForRenewal(ctx, s.db.GetDB(), now, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions due for renewal: %w", err)
	}
	result.Processed = len(due)
	if len(due) == 0 {
		return result, nil
	}

	s.logger.Info("sweeping overdue renewals",
		ports.String("as_of", now.Format(time.DateOnly)),
		ports.Int("count", len(due)))

	advanced := make([]*domain.Subscription, 0, len(due))
	for _, sub := range due {
		if err := s.sweepOne(ctx, sub, now); err != nil {
			result.Failed++
			s.logger.Error("renewal sweep failed for subscription",
				ports.String("subscription_id", sub.ID().String()),
				ports.Err(err))
			continue
		}
		advanced = append(advanced, sub)
		result.Advanced++
		observability.RecordRenewalAdvanced()
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, sub := range advanced {
			if err := s.subRepo.Update(ctx, tx, sub); err != nil {
				return fmt.Errorf("save subscription %s: %w", sub.ID(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit sweep batch: %w", err)
	}

	s.logger.Info("renewal sweep completed",
		ports.Int("processed", result.Processed),
		ports.Int("advanced", result.Advanced),
		ports.Int("failed", result.Failed))
	return result, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, sub *domain.Subscription, now time.Time) error {
	sub.UpdateNextRenewalDate(now)

	for _, event := range sub.PullEvents() {
		if _, ok := event.(domain.RenewalChanged); !ok {
			continue
		}
		if err := s.renewalHandler.HandleRenewalChanged(ctx, sub, now); err != nil {
			return fmt.Errorf("regenerate occurrences: %w", err)
		}
	}
	return nil
}
