// Package mailqueue re-attempts delivery of previously failed reminder
// emails, bounded by each record's retry cap.
package mailqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/renewly/reminder-service/internal/domain"
	"github.com/renewly/reminder-service/internal/domain/ports"
	"github.com/renewly/reminder-service/pkg/observability"
)

// RetryResult summarizes one retry-queue run
type RetryResult struct {
	Processed int
	Sent      int
	Failed    int
	Exhausted int
}

// Service drains the pending email retry queue. Records are retried oldest
// first with no backoff; a record that exhausts its cap stays in storage
// for audit but is never attempted again.
type Service struct {
	db          ports.DBPort
	pendingRepo ports.PendingEmailRepository
	mailer      ports.Mailer
	clock       ports.Clock
	logger      ports.Logger
	batchSize   int32
}

// NewService creates a new retry queue service
func NewService(
	db ports.DBPort,
	pendingRepo ports.PendingEmailRepository,
	mailer ports.Mailer,
	clock ports.Clock,
	logger ports.Logger,
	batchSize int32,
) *Service {
	return &Service{
		db:          db,
		pendingRepo: pendingRepo,
		mailer:      mailer,
		clock:       clock,
		logger:      logger,
		batchSize:   batchSize,
	}
}

// Run processes one retry batch
func (s *Service) Run(ctx context.Context) (*RetryResult, error) {
	result := &RetryResult{}

	pendings, err := s.pendingRepo.ListRetryable(ctx, s.db.GetDB(), s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list retryable emails: %w", err)
	}
	result.Processed = len(pendings)
	if len(pendings) == 0 {
		return result, nil
	}

	s.logger.Info("retrying pending emails", ports.Int("count", len(pendings)))

	attempted := make([]*domain.PendingEmail, 0, len(pendings))
	for _, pending := range pendings {
		if !pending.CanRetry() {
			continue
		}

		now := s.clock.Now()
		delivery := s.mailer.AttemptDelivery(ctx, pending.Recipient(), pending.Subject(), pending.Body())
		if delivery.Success {
			pending.MarkSent(now)
			result.Sent++
			observability.RecordEmailRetry("sent")
		} else {
			pending.RegisterFailure(delivery.ErrorMessage, now)
			if pending.CanRetry() {
				result.Failed++
				observability.RecordEmailRetry("failed")
			} else {
				result.Exhausted++
				observability.RecordEmailRetry("exhausted")
				s.logger.Warn("pending email exhausted its retries",
					ports.String("pending_email_id", pending.ID().String()),
					ports.String("recipient", pending.Recipient()),
					ports.Int("retry_count", pending.RetryCount()))
			}
		}
		attempted = append(attempted, pending)
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, pending := range attempted {
			if err := s.pendingRepo.Update(ctx, tx, pending); err != nil {
				return fmt.Errorf("save pending email %s: %w", pending.ID(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit retry batch: %w", err)
	}

	s.logger.Info("retry batch completed",
		ports.Int("processed", result.Processed),
		ports.Int("sent", result.Sent),
		ports.Int("failed", result.Failed),
		ports.Int("exhausted", result.Exhausted))
	return result, nil
}
