package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPendingEmail(t *testing.T) {
	now := time.Date(2025, 1, 29, 9, 1, 0, 0, time.UTC)
	p := NewPendingEmail("owner@example.com", "Reminder: Streaming renews on 2025-02-01", "body", "connection refused", now)

	assert.Equal(t, 0, p.RetryCount())
	assert.Equal(t, MaxDeliveryRetries, p.MaxRetries())
	assert.Equal(t, "connection refused", p.LastError())
	assert.Equal(t, now, p.LastAttemptAt())
	assert.False(t, p.Sent())
	assert.True(t, p.CanRetry())
}

func TestRegisterFailureCapsRetryCount(t *testing.T) {
	now := time.Date(2025, 1, 29, 9, 1, 0, 0, time.UTC)
	p := NewPendingEmail("owner@example.com", "subject", "body", "first failure", now)

	for i := 1; i <= MaxDeliveryRetries; i++ {
		p.RegisterFailure(fmt.Sprintf("failure %d", i), now.Add(time.Duration(i)*time.Minute))
	}
	require.Equal(t, MaxDeliveryRetries, p.RetryCount())
	assert.False(t, p.CanRetry())

	// a failure past the cap refreshes the error but never grows the count
	p.RegisterFailure("one too many", now.Add(time.Hour))
	assert.Equal(t, MaxDeliveryRetries, p.RetryCount())
	assert.Equal(t, "one too many", p.LastError())
	assert.False(t, p.CanRetry())
}

func TestMarkSent(t *testing.T) {
	now := time.Date(2025, 1, 29, 9, 1, 0, 0, time.UTC)
	p := NewPendingEmail("owner@example.com", "subject", "body", "timeout", now)
	p.RegisterFailure("timeout again", now.Add(time.Minute))

	sentAt := now.Add(10 * time.Minute)
	p.MarkSent(sentAt)

	assert.True(t, p.Sent())
	assert.Empty(t, p.LastError())
	assert.Equal(t, sentAt, p.LastAttemptAt())
	assert.False(t, p.CanRetry())
	assert.Equal(t, 1, p.RetryCount())
}
