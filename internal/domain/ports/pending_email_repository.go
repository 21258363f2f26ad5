package ports

import (
	"context"

	"github.com/renewly/reminder-service/internal/domain"
)

// PendingEmailRepository defines persistence for the durable retry queue
type PendingEmailRepository interface {
	// Create enqueues a failed delivery for retry
	Create(ctx context.Context, tx DBTX, email *domain.PendingEmail) error

	// Update saves retry bookkeeping after an attempt
	Update(ctx context.Context, tx DBTX, email *domain.PendingEmail) error

	// ListRetryable lists unsent, under-cap records, oldest first
	ListRetryable(ctx context.Context, db DBTX, limit int32) ([]*domain.PendingEmail, error)
}
