package withdrawal

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
)

const holdingWindow = 7 * 24 * time.Hour

type mockWithdrawalRepo struct {
	mock.Mock
}

func (m *mockWithdrawalRepo) Create(ctx context.Context, request *entities.WithdrawalRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *mockWithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalRepo) UpdateState(ctx context.Context, id uuid.UUID, state entities.WithdrawalState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

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

func activePosition(t *testing.T, ownerID uuid.UUID, age time.Duration) *entities.Position {
	t.Helper()
	startedAt := time.Now().Add(-age)
	quote, err := returns.Commit(entities.TierGold, decimal.NewFromInt(500), 4, startedAt)
	require.NoError(t, err)

	maturesAt := quote.MaturesAt
	return &entities.Position{
		ID:               uuid.New(),
		OwnerID:          ownerID,
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
	}
}

// recordingTx stands in for a database transaction and records outcomes. An
// error from fn counts as a rollback, success as a commit.
type recordingTx struct {
	commits   int
	rollbacks int
}

func (t *recordingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

func newServiceTx(withdrawalRepo *mockWithdrawalRepo, positionRepo *mockPositionRepo, ledgerRepo *mockLedgerRepo, userRepo *mockUserRepo) (*Service, *recordingTx) {
	ledger := positions.NewService(positionRepo, positions.NoNoise{}, zap.NewNop())
	tx := &recordingTx{}
	return NewService(withdrawalRepo, ledger, ledgerRepo, userRepo, tx, holdingWindow, zap.NewNop()), tx
}

func newService(withdrawalRepo *mockWithdrawalRepo, positionRepo *mockPositionRepo, ledgerRepo *mockLedgerRepo, userRepo *mockUserRepo) *Service {
	svc, _ := newServiceTx(withdrawalRepo, positionRepo, ledgerRepo, userRepo)
	return svc
}

func TestRequestWithdrawsActivePosition(t *testing.T) {
	withdrawalRepo := new(mockWithdrawalRepo)
	positionRepo := new(mockPositionRepo)
	ledgerRepo := new(mockLedgerRepo)
	userRepo := new(mockUserRepo)
	svc := newService(withdrawalRepo, positionRepo, ledgerRepo, userRepo)

	ownerID := uuid.New()
	position := activePosition(t, ownerID, 14*24*time.Hour)

	positionRepo.On("GetByID", mock.Anything, position.ID).Return(position, nil)
	positionRepo.On("UpdateValue", mock.Anything, position.ID, int64(0), mock.Anything, mock.Anything).Return(nil).Once()
	positionRepo.On("UpdateStatus", mock.Anything, position.ID, int64(1),
		entities.PositionStatusWithdrawn, entities.PaymentStateConfirmed, (*string)(nil)).Return(nil).Once()
	withdrawalRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *entities.WithdrawalRequest) bool {
		return r.State == entities.WithdrawalStatePending &&
			r.Principal.Equal(decimal.NewFromInt(500)) &&
			r.Profit.IsPositive()
	})).Return(nil).Once()
	ledgerRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *entities.LedgerEvent) bool {
		return e.Kind == entities.LedgerKindDebit && e.State == entities.LedgerStateCompleted
	})).Return(nil).Once()
	userRepo.On("IncrementTotals", mock.Anything, ownerID,
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.IsZero() }),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.GreaterThan(decimal.NewFromInt(500)) }),
	).Return(nil).Once()

	request, err := svc.Request(context.Background(), ownerID, position.ID, &entities.CreateWithdrawalRequest{
		Method:      entities.ChannelWire,
		Destination: "acct-991",
	})
	require.NoError(t, err)
	assert.Equal(t, entities.PositionStatusWithdrawn, position.Status)
	// 14 days in: half of the 11.54 payout has accrued.
	assert.True(t, request.Profit.Round(2).Equal(decimal.NewFromFloat(5.77)),
		"expected profit 5.77, got %s", request.Profit.Round(2))

	withdrawalRepo.AssertExpectations(t)
	ledgerRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestRequestRollsBackWhenRecordingFails(t *testing.T) {
	withdrawalRepo := new(mockWithdrawalRepo)
	positionRepo := new(mockPositionRepo)
	ledgerRepo := new(mockLedgerRepo)
	userRepo := new(mockUserRepo)
	svc, tx := newServiceTx(withdrawalRepo, positionRepo, ledgerRepo, userRepo)

	ownerID := uuid.New()
	position := activePosition(t, ownerID, 14*24*time.Hour)

	positionRepo.On("GetByID", mock.Anything, position.ID).Return(position, nil)
	positionRepo.On("UpdateValue", mock.Anything, position.ID, int64(0), mock.Anything, mock.Anything).Return(nil).Once()
	positionRepo.On("UpdateStatus", mock.Anything, position.ID, int64(1),
		entities.PositionStatusWithdrawn, entities.PaymentStateConfirmed, (*string)(nil)).Return(nil).Once()
	withdrawalRepo.On("Create", mock.Anything, mock.Anything).
		Return(domainerrors.InternalError("connection reset", nil)).Once()

	_, err := svc.Request(context.Background(), ownerID, position.ID, &entities.CreateWithdrawalRequest{
		Method:      entities.ChannelWire,
		Destination: "acct-991",
	})
	require.Error(t, err)

	// The terminal flip must not outlive the failed payout records; the whole
	// sequence rolls back so the position stays withdrawable.
	assert.Equal(t, 1, tx.rollbacks)
	assert.Equal(t, 0, tx.commits)
	ledgerRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	userRepo.AssertNotCalled(t, "IncrementTotals", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestRejectsInsideHoldingWindow(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	svc := newService(new(mockWithdrawalRepo), positionRepo, new(mockLedgerRepo), new(mockUserRepo))

	ownerID := uuid.New()
	position := activePosition(t, ownerID, 3*24*time.Hour)
	positionRepo.On("GetByID", mock.Anything, position.ID).Return(position, nil)

	_, err := svc.Request(context.Background(), ownerID, position.ID, &entities.CreateWithdrawalRequest{
		Method:      entities.ChannelWire,
		Destination: "acct-991",
	})
	assert.True(t, domainerrors.IsStateViolation(err))
	assert.Equal(t, entities.PositionStatusActive, position.Status, "position is untouched")
}

func TestRequestRejectsNonOwner(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	svc := newService(new(mockWithdrawalRepo), positionRepo, new(mockLedgerRepo), new(mockUserRepo))

	position := activePosition(t, uuid.New(), 14*24*time.Hour)
	positionRepo.On("GetByID", mock.Anything, position.ID).Return(position, nil)

	_, err := svc.Request(context.Background(), uuid.New(), position.ID, &entities.CreateWithdrawalRequest{
		Method:      entities.ChannelWire,
		Destination: "acct-991",
	})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
}

func TestRequestRejectsNonActivePosition(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	svc := newService(new(mockWithdrawalRepo), positionRepo, new(mockLedgerRepo), new(mockUserRepo))

	ownerID := uuid.New()
	position := activePosition(t, ownerID, 14*24*time.Hour)
	position.Status = entities.PositionStatusCompleted
	positionRepo.On("GetByID", mock.Anything, position.ID).Return(position, nil)

	_, err := svc.Request(context.Background(), ownerID, position.ID, &entities.CreateWithdrawalRequest{
		Method:      entities.ChannelWire,
		Destination: "acct-991",
	})
	assert.True(t, domainerrors.IsStateViolation(err))
}

func TestRequestValidatesInput(t *testing.T) {
	svc := newService(new(mockWithdrawalRepo), new(mockPositionRepo), new(mockLedgerRepo), new(mockUserRepo))

	_, err := svc.Request(context.Background(), uuid.New(), uuid.New(), &entities.CreateWithdrawalRequest{
		Method:      entities.PaymentChannel("cheque"),
		Destination: "acct-991",
	})
	assert.True(t, domainerrors.IsInvalidInput(err))

	_, err = svc.Request(context.Background(), uuid.New(), uuid.New(), &entities.CreateWithdrawalRequest{
		Method: entities.ChannelWire,
	})
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestGetEnforcesOwnership(t *testing.T) {
	withdrawalRepo := new(mockWithdrawalRepo)
	svc := newService(withdrawalRepo, new(mockPositionRepo), new(mockLedgerRepo), new(mockUserRepo))

	ownerID := uuid.New()
	request := &entities.WithdrawalRequest{ID: uuid.New(), OwnerID: ownerID}
	withdrawalRepo.On("GetByID", mock.Anything, request.ID).Return(request, nil)

	got, err := svc.Get(context.Background(), ownerID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, request.ID, got.ID)

	_, err = svc.Get(context.Background(), uuid.New(), request.ID)
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
}
