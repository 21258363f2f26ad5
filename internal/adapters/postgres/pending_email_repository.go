package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/renewly/reminder-service/internal/domain"
	"github.com/renewly/reminder-service/internal/domain/ports"
)

// PendingEmailRepository implements ports.PendingEmailRepository
type PendingEmailRepository struct {
	db ports.DBPort
}

// NewPendingEmailRepository creates a new pending email repository
func NewPendingEmailRepository(db ports.DBPort) *PendingEmailRepository {
	return &PendingEmailRepository{db: db}
}

func (r *PendingEmailRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create enqueues a failed delivery for retry
func (r *PendingEmailRepository) Create(ctx context.Context, tx ports.DBTX, email *domain.PendingEmail) error {
	q := r.executor(tx)
	_, err := q.Exec(ctx, `
        INSERT INTO pending_emails (
            id, recipient, subject, body, retry_count, max_retries,
            last_attempt_at, sent, last_error, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		email.ID(), email.Recipient(), email.Subject(), email.Body(),
		email.RetryCount(), email.MaxRetries(), email.LastAttemptAt(),
		email.Sent(), email.LastError(), email.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("insert pending email: %w", err)
	}
	return nil
}

// Update saves retry bookkeeping after an attempt
func (r *PendingEmailRepository) Update(ctx context.Context, tx ports.DBTX, email *domain.PendingEmail) error {
	q := r.executor(tx)
	tag, err := q.Exec(ctx, `
        UPDATE pending_emails
        SET retry_count = $2, last_attempt_at = $3, sent = $4, last_error = $5
        WHERE id = $1`,
		email.ID(), email.RetryCount(), email.LastAttemptAt(), email.Sent(), email.LastError(),
	)
	if err != nil {
		return fmt.Errorf("update pending email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPendingEmailNotFound
	}
	return nil
}

// ListRetryable lists unsent, under-cap records, oldest first
func (r *PendingEmailRepository) ListRetryable(ctx context.Context, db ports.DBTX, limit int32) ([]*domain.PendingEmail, error) {
	q := r.executor(db)
	rows, err := q.Query(ctx, `
        SELECT id, recipient, subject, body, retry_count, max_retries,
               last_attempt_at, sent, last_error, created_at
        FROM pending_emails
        WHERE sent = FALSE AND retry_count < max_retries
        ORDER BY created_at
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query retryable emails: %w", err)
	}
	defer rows.Close()

	var emails []*domain.PendingEmail
	for rows.Next() {
		var (
			id                         uuid.UUID
			recipient, subject, body   string
			retryCount, maxRetries     int
			lastAttemptAt, createdAt   time.Time
			sent                       bool
			lastError                  string
		)
		if err := rows.Scan(&id, &recipient, &subject, &body, &retryCount, &maxRetries,
			&lastAttemptAt, &sent, &lastError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending email: %w", err)
		}
		emails = append(emails, domain.RestorePendingEmail(
			id, recipient, subject, body, retryCount, maxRetries,
			lastAttemptAt, sent, lastError, createdAt,
		))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending emails: %w", err)
	}
	return emails, nil
}
