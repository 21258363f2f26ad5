package subscription

import (
	"context"
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

type mockRenewalHandler struct{ mock.Mock }

func (m *mockRenewalHandler) HandleRenewalChanged(ctx context.Context, sub *domain.Subscription, now time.Time) error {
	return m.Called(ctx, sub, now).Error(0)
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

type serviceFixture struct {
	db      *mockDBPort
	subRepo *mockSubscriptionRepo
	handler *mockRenewalHandler
	service *Service
}

func newServiceFixture(now time.Time) *serviceFixture {
	f := &serviceFixture{
		db:      &mockDBPort{},
		subRepo: &mockSubscriptionRepo{},
		handler: &mockRenewalHandler{},
	}
	f.service = NewService(f.db, f.subRepo, f.handler, fixedClock{now: now}, nopLogger{})
	return f
}

func monthlySub(t *testing.T) *domain.Subscription {
	t.Helper()
	sub, err := domain.NewStandardSubscription(uuid.New(), "Streaming", domain.PlanMonthly, day(2025, 1, 1), decimal.NewFromFloat(9.99), "USD", day(2025, 1, 10))
	require.NoError(t, err)
	return sub
}

func TestCreateStandard(t *testing.T) {
	f := newServiceFixture(day(2025, 2, 15))
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	sub, err := f.service.CreateStandard(context.Background(), CreateStandardRequest{
		OwnerID:   uuid.New(),
		Name:      "Streaming",
		Plan:      domain.PlanMonthly,
		StartDate: day(2025, 1, 1),
		Cost:      decimal.NewFromFloat(9.99),
		Currency:  "USD",
	})
	require.NoError(t, err)

	assert.Equal(t, day(2025, 3, 1), sub.RenewalDate())
	f.subRepo.AssertNumberOfCalls(t, "Create", 1)
}

func TestCreateStandardRejectsTrialPlan(t *testing.T) {
	f := newServiceFixture(day(2025, 2, 15))

	_, err := f.service.CreateStandard(context.Background(), CreateStandardRequest{
		OwnerID:   uuid.New(),
		Name:      "Streaming",
		Plan:      domain.PlanTrial,
		StartDate: day(2025, 1, 1),
		Cost:      decimal.NewFromInt(5),
		Currency:  "USD",
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
	f.subRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	f.db.AssertNotCalled(t, "WithTransaction", mock.Anything, mock.Anything)
}

func TestCreateTrial(t *testing.T) {
	f := newServiceFixture(day(2026, 1, 1))
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	sub, err := f.service.CreateTrial(context.Background(), CreateTrialRequest{
		OwnerID:         uuid.New(),
		Name:            "Trial",
		StartDate:       day(2026, 1, 1),
		TrialPeriodDays: 7,
		Cost:            decimal.Zero,
		Currency:        "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, day(2026, 1, 8), sub.RenewalDate())
}

func TestCreateTrialExpired(t *testing.T) {
	f := newServiceFixture(day(2026, 1, 1))

	_, err := f.service.CreateTrial(context.Background(), CreateTrialRequest{
		OwnerID:         uuid.New(),
		Name:            "Trial",
		StartDate:       day(2025, 1, 1),
		TrialPeriodDays: 7,
		Cost:            decimal.Zero,
		Currency:        "USD",
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeValidationTrialExpired, domain.GetErrorCode(err))
	f.subRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateCustom(t *testing.T) {
	f := newServiceFixture(day(2025, 1, 5))
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	sub, err := f.service.CreateCustom(context.Background(), CreateCustomRequest{
		OwnerID:          uuid.New(),
		Name:             "Box",
		StartDate:        day(2025, 1, 1),
		CustomPeriodDays: 10,
		Cost:             decimal.NewFromInt(20),
		Currency:         "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, day(2025, 1, 11), sub.RenewalDate())
}

func TestAddReminderRule(t *testing.T) {
	f := newServiceFixture(day(2025, 1, 10))
	sub := monthlySub(t)

	f.subRepo.On("GetByID", mock.Anything, mock.Anything, sub.ID()).Return(sub, nil)
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Update", mock.Anything, mock.Anything, sub).Return(nil)

	got, err := f.service.AddReminderRule(context.Background(), AddReminderRuleRequest{
		SubscriptionID:    sub.ID(),
		NotifyHour:        9,
		NotifyMinute:      0,
		DaysBeforeRenewal: 3,
	})
	require.NoError(t, err)

	require.Len(t, got.Rules(), 1)
	assert.Equal(t, 3, got.Rules()[0].DaysBeforeRenewal())
	f.subRepo.AssertNumberOfCalls(t, "Update", 1)
	// adding a rule does not move the renewal date
	f.handler.AssertNotCalled(t, "HandleRenewalChanged", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddReminderRuleInvalidTime(t *testing.T) {
	f := newServiceFixture(day(2025, 1, 10))

	_, err := f.service.AddReminderRule(context.Background(), AddReminderRuleRequest{
		SubscriptionID:    uuid.New(),
		NotifyHour:        25,
		NotifyMinute:      0,
		DaysBeforeRenewal: 3,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeValidationTimeOfDay, domain.GetErrorCode(err))
	f.subRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangePlanDispatchesRenewalChanged(t *testing.T) {
	now := day(2025, 1, 10)
	f := newServiceFixture(now)
	sub := monthlySub(t)

	f.subRepo.On("GetByID", mock.Anything, mock.Anything, sub.ID()).Return(sub, nil)
	f.handler.On("HandleRenewalChanged", mock.Anything, sub, now).Return(nil)
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Update", mock.Anything, mock.Anything, sub).Return(nil)

	got, err := f.service.ChangePlanAndStartDate(context.Background(), ChangePlanRequest{
		SubscriptionID: sub.ID(),
		Plan:           domain.PlanAnnual,
		StartDate:      day(2025, 1, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PlanAnnual, got.Plan())
	assert.Equal(t, day(2026, 1, 1), got.RenewalDate())
	f.handler.AssertNumberOfCalls(t, "HandleRenewalChanged", 1)
}

func TestSetMutedDoesNotDispatchEvents(t *testing.T) {
	f := newServiceFixture(day(2025, 1, 10))
	sub := monthlySub(t)

	f.subRepo.On("GetByID", mock.Anything, mock.Anything, sub.ID()).Return(sub, nil)
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Update", mock.Anything, mock.Anything, sub).Return(nil)

	got, err := f.service.SetMuted(context.Background(), sub.ID(), true)
	require.NoError(t, err)

	assert.True(t, got.Muted())
	f.handler.AssertNotCalled(t, "HandleRenewalChanged", mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveReminderRuleNotFound(t *testing.T) {
	f := newServiceFixture(day(2025, 1, 10))
	sub := monthlySub(t)

	f.subRepo.On("GetByID", mock.Anything, mock.Anything, sub.ID()).Return(sub, nil)

	_, err := f.service.RemoveReminderRule(context.Background(), sub.ID(), uuid.New())
	require.Error(t, err)
	assert.True(t, domain.IsNotFoundError(err))
	f.subRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete(t *testing.T) {
	f := newServiceFixture(day(2025, 1, 10))
	id := uuid.New()

	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Delete", mock.Anything, mock.Anything, id).Return(nil)

	require.NoError(t, f.service.Delete(context.Background(), id))
	f.subRepo.AssertNumberOfCalls(t, "Delete", 1)
}

func TestDeactivateAccountSubscriptions(t *testing.T) {
	f := newServiceFixture(day(2025, 1, 10))
	ownerID := uuid.New()

	first := monthlySub(t)
	_, err := first.AddReminderRule(domain.TimeOfDay{Hour: 9}, 3, day(2025, 1, 10))
	require.NoError(t, err)
	second := monthlySub(t)

	f.subRepo.On("ListByOwner", mock.Anything, mock.Anything, ownerID).Return([]*domain.Subscription{first, second}, nil)
	f.db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	f.subRepo.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.service.DeactivateAccountSubscriptions(context.Background(), ownerID))

	assert.Empty(t, first.Rules())
	assert.Empty(t, second.Rules())
	f.subRepo.AssertNumberOfCalls(t, "Update", 2)
}

func TestGet(t *testing.T) {
	f := newServiceFixture(day(2025, 1, 10))
	sub := monthlySub(t)

	f.subRepo.On("GetByID", mock.Anything, mock.Anything, sub.ID()).Return(sub, nil)

	got, err := f.service.Get(context.Background(), sub.ID())
	require.NoError(t, err)
	assert.Equal(t, sub, got)
}
