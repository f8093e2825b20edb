// Package withdrawal handles early exits from active positions.
package withdrawal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
	"github.com/vestra-platform/vestra_service/internal/domain/services/positions"
	"github.com/vestra-platform/vestra_service/internal/domain/services/reconcile"
)

// Repository persists withdrawal requests
type Repository interface {
	Create(ctx context.Context, request *entities.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error)
	UpdateState(ctx context.Context, id uuid.UUID, state entities.WithdrawalState) error
}

// Service implements withdrawal processing
type Service struct {
	repo          Repository
	ledger        *positions.Service
	ledgerRepo    reconcile.LedgerRepository
	userRepo      reconcile.UserRepository
	tx            reconcile.TxRunner
	holdingWindow time.Duration
	logger        *zap.Logger
}

// NewService creates a new withdrawal service
func NewService(
	repo Repository,
	ledger *positions.Service,
	ledgerRepo reconcile.LedgerRepository,
	userRepo reconcile.UserRepository,
	tx reconcile.TxRunner,
	holdingWindow time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:          repo,
		ledger:        ledger,
		ledgerRepo:    ledgerRepo,
		userRepo:      userRepo,
		tx:            tx,
		holdingWindow: holdingWindow,
		logger:        logger,
	}
}

// Request withdraws an active position early. The position must have been
// active for at least the holding window; the exit value is the position's
// value at the moment of the request, never a stale snapshot.
func (s *Service) Request(ctx context.Context, ownerID, positionID uuid.UUID, req *entities.CreateWithdrawalRequest) (*entities.WithdrawalRequest, error) {
	if err := req.Method.Validate(); err != nil {
		return nil, domainerrors.ValidationError("method", err.Error())
	}
	if req.Destination == "" {
		return nil, domainerrors.ValidationError("destination", "destination is required")
	}

	position, err := s.ledger.Get(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if position.OwnerID != ownerID {
		return nil, domainerrors.ErrForbidden
	}
	if position.Status != entities.PositionStatusActive {
		return nil, domainerrors.StateViolationError("only active positions can be withdrawn")
	}

	now := time.Now()
	if !position.HoldingWindowSatisfied(now, s.holdingWindow) {
		return nil, domainerrors.StateViolationError("position has not satisfied the minimum holding window")
	}

	// Settle the value first so the withdrawal captures accrual up to now.
	value, err := s.ledger.AdvanceValue(ctx, position, now)
	if err != nil {
		return nil, err
	}
	if position.Status != entities.PositionStatusActive {
		// Lost the race to maturity or another withdrawal.
		return nil, domainerrors.StateViolationError("position is no longer active")
	}

	profit := value.Sub(position.Principal)
	if profit.IsNegative() {
		profit = decimal.Zero
	}

	request := &entities.WithdrawalRequest{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		PositionID:  positionID,
		Principal:   position.Principal,
		Profit:      profit,
		Method:      req.Method,
		Destination: req.Destination,
		State:       entities.WithdrawalStatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	id := positionID
	ledgerEvent := &entities.LedgerEvent{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		PositionID:  &id,
		Kind:        entities.LedgerKindDebit,
		Amount:      value,
		State:       entities.LedgerStateCompleted,
		Channel:     req.Method,
		ExternalRef: "withdraw_" + request.ID.String(),
		CreatedAt:   now,
	}

	// Sealing the position and recording the payout must land together.
	// Withdrawn is terminal, so a partial write would strand the position
	// with no withdrawal request behind it.
	txErr := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.Transition(ctx, position, entities.PositionStatusWithdrawn, nil); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, request); err != nil {
			return err
		}
		if err := s.ledgerRepo.Create(ctx, ledgerEvent); err != nil {
			return err
		}
		return s.userRepo.IncrementTotals(ctx, ownerID, decimal.Zero, value)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.logger.Info("withdrawal requested",
		zap.String("withdrawal_id", request.ID.String()),
		zap.String("position_id", positionID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.String("amount", value.String()),
	)
	return request, nil
}

// Get retrieves a withdrawal request, enforcing ownership
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.OwnerID != ownerID {
		return nil, domainerrors.ErrForbidden
	}
	return request, nil
}

// ListByOwner retrieves a user's withdrawal requests, newest first
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	return s.repo.ListByOwner(ctx, ownerID, limit, offset)
}
