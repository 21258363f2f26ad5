package ports

import (
	"context"
	"time"

	"github.com/renewly/reminder-service/internal/domain"
)

// RenewalChangedHandler reacts to a subscription's renewal date moving.
// It is invoked by the unit of work that persists the aggregate, after the
// aggregate's pending events are drained and before the save commits.
type RenewalChangedHandler interface {
	HandleRenewalChanged(ctx context.Context, sub *domain.Subscription, now time.Time) error
}
