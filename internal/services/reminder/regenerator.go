package reminder

import (
	"context"
	"time"

	"github.com/renewly/reminder-service/internal/domain"
	"github.com/renewly/reminder-service/internal/domain/ports"
)

// Regenerator reacts to a subscription's renewal date moving: stale unsent
// occurrences are dropped and one fresh occurrence per rule is recomputed
// from the new renewal date. It runs inside the transaction that saves the
// aggregate, so the occurrence set and the renewal date commit together.
type Regenerator struct {
	logger ports.Logger
}

// NewRegenerator creates a new occurrence regenerator
func NewRegenerator(logger ports.Logger) *Regenerator {
	return &Regenerator{logger: logger}
}

// HandleRenewalChanged implements ports.RenewalChangedHandler
func (r *Regenerator) HandleRenewalChanged(ctx context.Context, sub *domain.Subscription, now time.Time) error {
	if err := sub.RegenerateOccurrences(now); err != nil {
		return err
	}

	r.logger.Debug("occurrences regenerated",
		ports.String("subscription_id", sub.ID().String()),
		ports.String("renewal_date", sub.RenewalDate().Format(time.DateOnly)),
		ports.Int("rules", len(sub.Rules())))
	return nil
}
