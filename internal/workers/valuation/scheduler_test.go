package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
	"github.com/vestra-platform/vestra_service/internal/domain/returns"
	"github.com/vestra-platform/vestra_service/internal/domain/services/positions"
	"github.com/vestra-platform/vestra_service/internal/domain/services/reconcile"
)

type mockPositionRepo struct {
	mock.Mock
}

func (m *mockPositionRepo) Create(ctx context.Context, position *entities.Position) error {
	args := m.Called(ctx, position)
	return args.Error(0)
}

func (m *mockPositionRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Position, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Position), args.Error(1)
}

func (m *mockPositionRepo) GetByExternalRef(ctx context.Context, externalRef string) (*entities.Position, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Position), args.Error(1)
}

func (m *mockPositionRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.Position, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Position), args.Error(1)
}

func (m *mockPositionRepo) ListByStatus(ctx context.Context, status entities.PositionStatus) ([]*entities.Position, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Position), args.Error(1)
}

func (m *mockPositionRepo) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*entities.Position, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Position), args.Error(1)
}

func (m *mockPositionRepo) UpdateValue(ctx context.Context, id uuid.UUID, version int64, value decimal.Decimal, valuedAt time.Time) error {
	args := m.Called(ctx, id, version, value, valuedAt)
	return args.Error(0)
}

func (m *mockPositionRepo) Activate(ctx context.Context, id uuid.UUID, version int64, startedAt, maturesAt time.Time, externalRef string) error {
	args := m.Called(ctx, id, version, startedAt, maturesAt, externalRef)
	return args.Error(0)
}

func (m *mockPositionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, version int64, status entities.PositionStatus, paymentState entities.PaymentState, reason *string) error {
	args := m.Called(ctx, id, version, status, paymentState, reason)
	return args.Error(0)
}

func (m *mockPositionRepo) SetExternalRef(ctx context.Context, id uuid.UUID, version int64, externalRef string) error {
	args := m.Called(ctx, id, version, externalRef)
	return args.Error(0)
}

type mockLedgerRepo struct {
	mock.Mock
}

func (m *mockLedgerRepo) Create(ctx context.Context, event *entities.LedgerEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockLedgerRepo) GetByExternalRef(ctx context.Context, externalRef string) (*entities.LedgerEvent, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.LedgerEvent), args.Error(1)
}

func (m *mockLedgerRepo) MarkCompleted(ctx context.Context, id uuid.UUID, positionID uuid.UUID) error {
	args := m.Called(ctx, id, positionID)
	return args.Error(0)
}

func (m *mockLedgerRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.LedgerEvent, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LedgerEvent), args.Error(1)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) IncrementTotals(ctx context.Context, ownerID uuid.UUID, invested, payout decimal.Decimal) error {
	args := m.Called(ctx, ownerID, invested, payout)
	return args.Error(0)
}

type countingObserver struct {
	runs, advanced, matured int
}

func (o *countingObserver) SweepCompleted(advanced, matured int) {
	o.runs++
	o.advanced += advanced
	o.matured += matured
}

func testPosition(t *testing.T, age time.Duration, autoReinvest bool) *entities.Position {
	t.Helper()
	startedAt := time.Now().Add(-age)
	quote, err := returns.Commit(entities.TierGold, decimal.NewFromInt(500), 4, startedAt)
	require.NoError(t, err)

	maturesAt := quote.MaturesAt
	return &entities.Position{
		ID:               uuid.New(),
		OwnerID:          uuid.New(),
		Category:         entities.CategoryFixedIncome,
		Tier:             entities.TierGold,
		Principal:        decimal.NewFromInt(500),
		DurationWeeks:    4,
		AnnualRatePct:    quote.RatePct,
		ExpectedPayout:   quote.ExpectedPayout,
		CurrentValue:     decimal.NewFromInt(500),
		PerPeriodAccrual: quote.PerPeriodAccrual,
		Status:           entities.PositionStatusActive,
		StartedAt:        &startedAt,
		MaturesAt:        &maturesAt,
		PaymentChannel:   entities.ChannelCard,
		PaymentState:     entities.PaymentStateConfirmed,
		AutoReinvest:     autoReinvest,
	}
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newScheduler(positionRepo *mockPositionRepo, ledgerRepo *mockLedgerRepo, userRepo *mockUserRepo, observer Observer) *Scheduler {
	ledger := positions.NewService(positionRepo, positions.NoNoise{}, zap.NewNop())
	engine := reconcile.NewEngine(positionRepo, ledger, ledgerRepo, userRepo, passthroughTx{}, nil, zap.NewNop())
	return NewScheduler(
		Config{Schedule: "@every 1h", PendingTTL: 14 * 24 * time.Hour},
		ledger, positionRepo, engine, userRepo, nil, observer, zap.NewNop(),
	)
}

func TestSweepAdvancesActivePositions(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	userRepo := new(mockUserRepo)
	observer := &countingObserver{}
	scheduler := newScheduler(positionRepo, new(mockLedgerRepo), userRepo, observer)

	midTerm := testPosition(t, 14*24*time.Hour, false)

	positionRepo.On("ListByStatus", mock.Anything, entities.PositionStatusActive).
		Return([]*entities.Position{midTerm}, nil).Once()
	positionRepo.On("UpdateValue", mock.Anything, midTerm.ID, int64(0), mock.Anything, mock.Anything).Return(nil).Once()
	positionRepo.On("ListPendingCreatedBefore", mock.Anything, mock.Anything).
		Return([]*entities.Position{}, nil).Once()

	scheduler.Sweep(context.Background())

	assert.True(t, midTerm.CurrentValue.Round(2).Equal(decimal.NewFromFloat(505.77)))
	assert.Equal(t, 1, observer.runs)
	assert.Equal(t, 1, observer.advanced)
	assert.Equal(t, 0, observer.matured)
	userRepo.AssertNotCalled(t, "IncrementTotals", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepSettlesMaturedPositionAndReinvests(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	ledgerRepo := new(mockLedgerRepo)
	userRepo := new(mockUserRepo)
	observer := &countingObserver{}
	scheduler := newScheduler(positionRepo, ledgerRepo, userRepo, observer)

	matured := testPosition(t, 29*24*time.Hour, true)
	ceiling := matured.Ceiling()

	positionRepo.On("ListByStatus", mock.Anything, entities.PositionStatusActive).
		Return([]*entities.Position{matured}, nil).Once()
	// Value advance, then settlement at the ceiling.
	positionRepo.On("UpdateValue", mock.Anything, matured.ID, int64(0), ceiling, mock.Anything).Return(nil).Once()
	positionRepo.On("UpdateValue", mock.Anything, matured.ID, int64(1), ceiling, mock.Anything).Return(nil).Once()
	positionRepo.On("UpdateStatus", mock.Anything, matured.ID, int64(2),
		entities.PositionStatusCompleted, entities.PaymentStateConfirmed, (*string)(nil)).Return(nil).Once()

	// Maturity credits the payout to the owner's totals.
	userRepo.On("IncrementTotals", mock.Anything, matured.OwnerID,
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.IsZero() }),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(ceiling) }),
	).Return(nil).Once()

	// Auto-reinvest flows through the reconciliation engine with a reference
	// derived from the matured position.
	reinvestRef := "reinvest_" + matured.ID.String()
	ledgerRepo.On("GetByExternalRef", mock.Anything, reinvestRef).
		Return(nil, domainerrors.NotFoundError("ledger event")).Once()
	ledgerRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	positionRepo.On("GetByExternalRef", mock.Anything, reinvestRef).
		Return(nil, domainerrors.NotFoundError("position")).Once()
	positionRepo.On("Create", mock.Anything, mock.MatchedBy(func(p *entities.Position) bool {
		return p.Status == entities.PositionStatusActive && p.Principal.Equal(ceiling)
	})).Return(nil).Once()
	ledgerRepo.On("MarkCompleted", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	userRepo.On("IncrementTotals", mock.Anything, matured.OwnerID,
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(ceiling) }),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.IsZero() }),
	).Return(nil).Once()

	positionRepo.On("ListPendingCreatedBefore", mock.Anything, mock.Anything).
		Return([]*entities.Position{}, nil).Once()

	scheduler.Sweep(context.Background())

	assert.Equal(t, entities.PositionStatusCompleted, matured.Status)
	assert.Equal(t, 1, observer.matured)
	positionRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestSweepExpiresStalePendingPositions(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	ledgerRepo := new(mockLedgerRepo)
	observer := &countingObserver{}
	scheduler := newScheduler(positionRepo, ledgerRepo, new(mockUserRepo), observer)

	stale := testPosition(t, 0, false)
	stale.Status = entities.PositionStatusPending
	stale.PaymentState = entities.PaymentStateAwaitingPayment
	stale.PaymentChannel = entities.ChannelCrypto
	stale.StartedAt = nil
	stale.CreatedAt = time.Now().Add(-15 * 24 * time.Hour)

	positionRepo.On("ListByStatus", mock.Anything, entities.PositionStatusActive).
		Return([]*entities.Position{}, nil).Once()
	positionRepo.On("ListPendingCreatedBefore", mock.Anything, mock.Anything).
		Return([]*entities.Position{stale}, nil).Once()
	positionRepo.On("GetByID", mock.Anything, stale.ID).Return(stale, nil).Once()
	ledgerRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *entities.LedgerEvent) bool {
		return e.State == entities.LedgerStateFailed
	})).Return(nil).Once()
	positionRepo.On("UpdateStatus", mock.Anything, stale.ID, int64(0),
		entities.PositionStatusRejected, entities.PaymentStateFailed, mock.Anything).Return(nil).Once()

	scheduler.Sweep(context.Background())

	assert.Equal(t, entities.PositionStatusRejected, stale.Status)
}

func TestSweepIsolatesPerPositionFailures(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	observer := &countingObserver{}
	scheduler := newScheduler(positionRepo, new(mockLedgerRepo), new(mockUserRepo), observer)

	broken := testPosition(t, 14*24*time.Hour, false)
	healthy := testPosition(t, 14*24*time.Hour, false)

	positionRepo.On("ListByStatus", mock.Anything, entities.PositionStatusActive).
		Return([]*entities.Position{broken, healthy}, nil).Once()
	positionRepo.On("UpdateValue", mock.Anything, broken.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(assert.AnError).Once()
	positionRepo.On("UpdateValue", mock.Anything, healthy.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Once()
	positionRepo.On("ListPendingCreatedBefore", mock.Anything, mock.Anything).
		Return([]*entities.Position{}, nil).Once()

	scheduler.Sweep(context.Background())

	assert.Equal(t, 1, observer.advanced, "the healthy position still advances")
}
