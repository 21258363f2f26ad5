package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/renewly/reminder-service/pkg/timeutil"
)

// MaxDeliveryRetries caps how many times a failed reminder email is
// re-attempted by the retry queue
const MaxDeliveryRetries = 5

// PendingEmail is a durable record of a failed delivery attempt awaiting
// bounded retry. Once the cap is exhausted the record stays for audit but
// is permanently inert.
type PendingEmail struct {
	id            uuid.UUID
	recipient     string
	subject       string
	body          string
	retryCount    int
	maxRetries    int
	lastAttemptAt time.Time
	sent          bool
	lastError     string
	createdAt     time.Time
}

// NewPendingEmail records a failed dispatch for later retry. The original
// dispatcher attempt is not counted against the retry budget.
func NewPendingEmail(recipient, subject, body, failureReason string, now time.Time) *PendingEmail {
	nowUTC := timeutil.ToUTC(now)
	return &PendingEmail{
		id:            uuid.New(),
		recipient:     recipient,
		subject:       subject,
		body:          body,
		maxRetries:    MaxDeliveryRetries,
		lastAttemptAt: nowUTC,
		lastError:     failureReason,
		createdAt:     nowUTC,
	}
}

// RestorePendingEmail rehydrates a record from storage
func RestorePendingEmail(id uuid.UUID, recipient, subject, body string, retryCount, maxRetries int, lastAttemptAt time.Time, sent bool, lastError string, createdAt time.Time) *PendingEmail {
	return &PendingEmail{
		id:            id,
		recipient:     recipient,
		subject:       subject,
		body:          body,
		retryCount:    retryCount,
		maxRetries:    maxRetries,
		lastAttemptAt: lastAttemptAt,
		sent:          sent,
		lastError:     lastError,
		createdAt:     createdAt,
	}
}

// ID returns the record identity
func (p *PendingEmail) ID() uuid.UUID { return p.id }

// Recipient returns the destination address
func (p *PendingEmail) Recipient() string { return p.recipient }

// Subject returns the email subject
func (p *PendingEmail) Subject() string { return p.subject }

// Body returns the email body
func (p *PendingEmail) Body() string { return p.body }

// RetryCount returns how many retry attempts have failed
func (p *PendingEmail) RetryCount() int { return p.retryCount }

// MaxRetries returns the retry cap
func (p *PendingEmail) MaxRetries() int { return p.maxRetries }

// LastAttemptAt returns the timestamp of the most recent attempt
func (p *PendingEmail) LastAttemptAt() time.Time { return p.lastAttemptAt }

// Sent reports whether a retry eventually succeeded
func (p *PendingEmail) Sent() bool { return p.sent }

// LastError returns the most recent failure reason, empty after success
func (p *PendingEmail) LastError() string { return p.lastError }

// CreatedAt returns when the record was enqueued
func (p *PendingEmail) CreatedAt() time.Time { return p.createdAt }

// CanRetry reports whether the record is still eligible for delivery
func (p *PendingEmail) CanRetry() bool {
	return !p.sent && p.retryCount < p.maxRetries
}

// MarkSent freezes the record after a successful retry
func (p *PendingEmail) MarkSent(now time.Time) {
	p.sent = true
	p.lastError = ""
	p.lastAttemptAt = timeutil.ToUTC(now)
}

// RegisterFailure records another failed attempt. The counter never
// exceeds the cap; failures past the cap only refresh the error text.
func (p *PendingEmail) RegisterFailure(reason string, now time.Time) {
	if p.retryCount < p.maxRetries {
		p.retryCount++
	}
	p.lastError = reason
	p.lastAttemptAt = timeutil.ToUTC(now)
}
