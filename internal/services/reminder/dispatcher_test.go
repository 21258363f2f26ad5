package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/renewly/reminder-service/internal/domain"
	"github.com/renewly/reminder-service/internal/domain/ports"
)

type mockDBPort struct{ mock.Mock }

func (m *mockDBPort) GetDB() *pgxpool.Pool { return nil }

func (m *mockDBPort) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx, nil)
}

func (m *mockDBPort) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx, nil)
}

type mockOccurrenceRepo struct{ mock.Mock }

func (m *mockOccurrenceRepo) ListDueReminders(ctx context.Context, db ports.DBTX, now time.Time, limit int32) ([]ports.DueReminder, error) {
	args := m.Called(ctx, db, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.DueReminder), args.Error(1)
}

type mockSubscriptionRepo struct{ mock.Mock }

func (m *mockSubscriptionRepo) Create(ctx context.Context, tx ports.DBTX, sub *domain.Subscription) error {
	return m.Called(ctx, tx, sub).Error(0)
}

func (m *mockSubscriptionRepo) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Subscription, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepo) Update(ctx context.Context, tx ports.DBTX, sub *domain.Subscription) error {
	return m.Called(ctx, tx, sub).Error(0)
}

func (m *mockSubscriptionRepo) Delete(ctx context.Context, tx ports.DBTX, id uuid.UUID) error {
	return m.Called(ctx, tx, id).Error(0)
}

func (m *mockSubscriptionRepo) ListByOwner(ctx context.Context, db ports.DBTX, ownerID uuid.UUID) ([]*domain.Subscription, error) {
	args := m.Called(ctx, db, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepo) ListDueForRenewal(ctx context.Context, db ports.DBTX, today time.Time, limit int32) ([]*domain.Subscription, error) {
	args := m.Called(ctx, db, today, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Subscription), args.Error(1)
}

type mockPendingEmailRepo struct{ mock.Mock }

func (m *mockPendingEmailRepo) Create(ctx context.Context, tx ports.DBTX, email *domain.PendingEmail) error {
	return m.Called(ctx, tx, email).Error(0)
}

func (m *mockPendingEmailRepo) Update(ctx context.Context, tx ports.DBTX, email *domain.PendingEmail) error {
	return m.Called(ctx, tx, email).Error(0)
}

func (m *mockPendingEmailRepo) ListRetryable(ctx context.Context, db ports.DBTX, limit int32) ([]*domain.PendingEmail, error) {
	args := m.Called(ctx, db, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PendingEmail), args.Error(1)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) AttemptDelivery(ctx context.Context, recipient, subject, body string) ports.DeliveryResult {
	args := m.Called(ctx, recipient, subject, body)
	return args.Get(0).(ports.DeliveryResult)
}

type mockRenderer struct{ mock.Mock }

func (m *mockRenderer) RenderReminderEmail(data ports.ReminderEmailData) (string, string, error) {
	args := m.Called(data)
	return args.String(0), args.String(1), args.Error(2)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type nopLogger struct{}

func (nopLogger) Info(string, ...ports.Field)  {}
func (nopLogger) Error(string, ...ports.Field) {}
func (nopLogger) Warn(string, ...ports.Field)  {}
func (nopLogger) Debug(string, ...ports.Field) {}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type dispatcherFixture struct {
	db          *mockDBPort
	occRepo     *mockOccurrenceRepo
	subRepo     *mockSubscriptionRepo
	pendingRepo *mockPendingEmailRepo
	mailer      *mockMailer
	renderer    *mockRenderer
	dispatcher  *Dispatcher
}

func newDispatcherFixture(now time.Time) *dispatcherFixture {
	f := &dispatcherFixture{
		db:          &mockDBPort{},
		occRepo:     &mockOccurrenceRepo{},
		subRepo:     &mockSubscriptionRepo{},
		pendingRepo: &mockPendingEmailRepo{},
		mailer:      &mockMailer{},
		renderer:    &mockRenderer{},
	}
	f.dispatcher = NewDispatcher(f.db, f.occRepo, f.subRepo, f.pendingRepo, f.mailer, f.renderer, fixedClock{now: now}, nopLogger{}, 500)
	return f
}

// dueReminder builds a subscription with one reminder rule whose occurrence
// is due at 2025-01-29 09:00 UTC (renewal 2025-02-01, 3 days before).
func dueReminder(t *testing.T, daysBefore int) (ports.DueReminder, *domain.Subscription) {
	t.Helper()
	sub, err := domain.NewStandardSubscription(uuid.New(), "Streaming", domain.PlanMonthly, day(2025, 1, 1), decimal.NewFromFloat(9.99), "USD", day(2025, 1, 10))
	require.NoError(t, err)
	rule, err := sub.AddReminderRule(domain.TimeOfDay{Hour: 9}, daysBefore, day(2025, 1, 10))
	require.NoError(t, err)
	require.Len(t, rule.Occurrences(), 1)
	return ports.DueReminder{
		Occurrence:     rule.Occurrences()[0],
		RuleID:         rule.ID(),
		Subscription:   sub,
		RecipientEmail: "owner@example.com",
		RecipientName:  "Jamie",
	}, sub
}

func TestDispatcherRunEmptyBatch(t *testing.T) {
	now := time.Date(2025, 1, 29, 9, 0, 30, 0, time.UTC)
	f := newDispatcherFixture(now)
	f.occRepo.On("ListDueReminders", mock.Anything, mock.Anything, now, int32(500)).Return([]ports.DueReminder{}, nil)

	result, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Processed)
	f.db.AssertNotCalled(t, "WithTransaction", mock.Anything, mock.Anything)
}

func TestDispatcherRunDeliverySuccess(t *testing.T) {
	now := time.Date(2025, 1, 29, 9, 0, 30, 0, time.UTC)
	f := newDispatcherFixture(now)
	item, sub := dueReminder(t, 3)

	f.occRepo.On("ListDueReminders", mock.Anything, mock.Anything, now, int32(500)).Return([]ports.DueReminder{item}, nil)
	f.renderer.On("RenderReminderEmail", mock.Anything).Return("subject", "body", nil)
	f.mailer.On("AttemptDelivery", mock.Anything, "owner@example.com", "subject", "body").Return(ports.DeliveryResult{Success: true})
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Update", mock.Anything, mock.Anything, sub).Return(nil)

	result, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.True(t, item.Occurrence.Sent())
	f.subRepo.AssertNumberOfCalls(t, "Update", 1)
	f.pendingRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcherRunDeliveryFailure(t *testing.T) {
	now := time.Date(2025, 1, 29, 9, 0, 30, 0, time.UTC)
	f := newDispatcherFixture(now)
	item, _ := dueReminder(t, 3)

	f.occRepo.On("ListDueReminders", mock.Anything, mock.Anything, now, int32(500)).Return([]ports.DueReminder{item}, nil)
	f.renderer.On("RenderReminderEmail", mock.Anything).Return("subject", "body", nil)
	f.mailer.On("AttemptDelivery", mock.Anything, "owner@example.com", "subject", "body").Return(ports.DeliveryResult{Success: false, ErrorMessage: "connection refused"})
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.pendingRepo.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(p *domain.PendingEmail) bool {
		return p.Recipient() == "owner@example.com" && p.LastError() == "connection refused" && p.RetryCount() == 0
	})).Return(nil)

	result, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Sent)
	// the occurrence stays unsent and will be picked up again next run
	assert.False(t, item.Occurrence.Sent())
	f.subRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	f.pendingRepo.AssertNumberOfCalls(t, "Create", 1)
}

func TestDispatcherRunSharedSubscriptionSavedOnce(t *testing.T) {
	now := time.Date(2025, 1, 30, 9, 0, 30, 0, time.UTC)
	f := newDispatcherFixture(now)

	sub, err := domain.NewStandardSubscription(uuid.New(), "Streaming", domain.PlanMonthly, day(2025, 1, 1), decimal.NewFromFloat(9.99), "USD", day(2025, 1, 10))
	require.NoError(t, err)
	ruleA, err := sub.AddReminderRule(domain.TimeOfDay{Hour: 9}, 3, day(2025, 1, 10))
	require.NoError(t, err)
	ruleB, err := sub.AddReminderRule(domain.TimeOfDay{Hour: 9}, 2, day(2025, 1, 10))
	require.NoError(t, err)

	items := []ports.DueReminder{
		{Occurrence: ruleA.Occurrences()[0], RuleID: ruleA.ID(), Subscription: sub, RecipientEmail: "owner@example.com", RecipientName: "Jamie"},
		{Occurrence: ruleB.Occurrences()[0], RuleID: ruleB.ID(), Subscription: sub, RecipientEmail: "owner@example.com", RecipientName: "Jamie"},
	}

	f.occRepo.On("ListDueReminders", mock.Anything, mock.Anything, now, int32(500)).Return(items, nil)
	f.renderer.On("RenderReminderEmail", mock.Anything).Return("subject", "body", nil)
	f.mailer.On("AttemptDelivery", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(ports.DeliveryResult{Success: true})
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Update", mock.Anything, mock.Anything, sub).Return(nil)

	result, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Sent)
	assert.True(t, ruleA.Occurrences()[0].Sent())
	assert.True(t, ruleB.Occurrences()[0].Sent())
	// both occurrences live on the same aggregate, one save covers them
	f.subRepo.AssertNumberOfCalls(t, "Update", 1)
}

func TestDispatcherRunRenderErrorSkips(t *testing.T) {
	now := time.Date(2025, 1, 29, 9, 0, 30, 0, time.UTC)
	f := newDispatcherFixture(now)
	item, _ := dueReminder(t, 3)

	f.occRepo.On("ListDueReminders", mock.Anything, mock.Anything, now, int32(500)).Return([]ports.DueReminder{item}, nil)
	f.renderer.On("RenderReminderEmail", mock.Anything).Return("", "", errors.New("bad template"))
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)

	result, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.False(t, item.Occurrence.Sent())
	f.mailer.AssertNotCalled(t, "AttemptDelivery", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcherRunAlreadySentSkips(t *testing.T) {
	now := time.Date(2025, 1, 29, 9, 0, 30, 0, time.UTC)
	f := newDispatcherFixture(now)
	item, _ := dueReminder(t, 3)
	require.NoError(t, item.Occurrence.MarkAsSent(now.Add(-time.Minute)))

	f.occRepo.On("ListDueReminders", mock.Anything, mock.Anything, now, int32(500)).Return([]ports.DueReminder{item}, nil)
	f.renderer.On("RenderReminderEmail", mock.Anything).Return("subject", "body", nil)
	f.mailer.On("AttemptDelivery", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(ports.DeliveryResult{Success: true})
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)

	result, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Sent)
	f.subRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcherRunListError(t *testing.T) {
	now := time.Date(2025, 1, 29, 9, 0, 30, 0, time.UTC)
	f := newDispatcherFixture(now)
	f.occRepo.On("ListDueReminders", mock.Anything, mock.Anything, now, int32(500)).Return(nil, errors.New("db down"))

	_, err := f.dispatcher.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list due reminders")
}

func TestDispatcherRunMixedBatchIsIsolated(t *testing.T) {
	now := time.Date(2025, 1, 29, 9, 0, 30, 0, time.UTC)
	f := newDispatcherFixture(now)
	good, goodSub := dueReminder(t, 3)
	bad, _ := dueReminder(t, 3)
	bad.RecipientEmail = "broken@example.com"

	f.occRepo.On("ListDueReminders", mock.Anything, mock.Anything, now, int32(500)).Return([]ports.DueReminder{bad, good}, nil)
	f.renderer.On("RenderReminderEmail", mock.Anything).Return("subject", "body", nil)
	f.mailer.On("AttemptDelivery", mock.Anything, "broken@example.com", mock.Anything, mock.Anything).Return(ports.DeliveryResult{Success: false, ErrorMessage: "mailbox full"})
	f.mailer.On("AttemptDelivery", mock.Anything, "owner@example.com", mock.Anything, mock.Anything).Return(ports.DeliveryResult{Success: true})
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Update", mock.Anything, mock.Anything, goodSub).Return(nil)
	f.pendingRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)
	f.subRepo.AssertNumberOfCalls(t, "Update", 1)
	f.pendingRepo.AssertNumberOfCalls(t, "Create", 1)
}
