package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/renewly/reminder-service/internal/domain"
)

// SubscriptionRepository defines the persistence boundary for the
// subscription aggregate. Mutations are whole-aggregate saves: Update
// rewrites the subscription row, its rules, and its occurrences, and
// purges orphaned unsent occurrences in the same pass.
type SubscriptionRepository interface {
	// Create persists a new subscription with its rules and occurrences
	Create(ctx context.Context, tx DBTX, subscription *domain.Subscription) error

	// GetByID retrieves a subscription aggregate by its ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Subscription, error)

	// Update saves the whole aggregate
	Update(ctx context.Context, tx DBTX, subscription *domain.Subscription) error

	// Delete removes a subscription, cascading to rules and occurrences
	Delete(ctx context.Context, tx DBTX, id uuid.UUID) error

	// ListByOwner lists all subscriptions for an owning account
	ListByOwner(ctx context.Context, db DBTX, ownerID uuid.UUID) ([]*domain.Subscription, error)

	// ListDueForRenewal lists subscriptions whose renewal date is on or
	// before today, for the renewal sweeper
	ListDueForRenewal(ctx context.Context, db DBTX, today time.Time, limit int32) ([]*domain.Subscription, error)
}
