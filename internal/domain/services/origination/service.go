// Package origination handles creation of new positions across payment
// channels. Instant channels return a checkout handle and no database row;
// the position materializes when the processor's callback is reconciled.
// Manual channels persist a pending position immediately and surface payment
// instructions for the user to act on.
package origination

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/adapters/payments"
	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
	"github.com/vestra-platform/vestra_service/internal/domain/returns"
	"github.com/vestra-platform/vestra_service/internal/domain/services/positions"
	"github.com/vestra-platform/vestra_service/internal/domain/services/reconcile"
)

var minorUnitScale = decimal.NewFromInt(100)

// CreateResult is the outcome of a create call. Exactly one of Position and
// Charge is set, depending on the payment channel.
type CreateResult struct {
	Position     *entities.Position            `json:"position,omitempty"`
	Charge       *entities.ChargeHandle        `json:"charge,omitempty"`
	Instructions *entities.PaymentInstructions `json:"instructions,omitempty"`
}

// Service implements position origination
type Service struct {
	repo     positions.Repository
	ledger   *positions.Service
	instant  map[entities.PaymentChannel]payments.InstantAdapter
	manual   map[entities.PaymentChannel]payments.ManualAdapter
	notifier reconcile.Notifier
	logger   *zap.Logger
}

// NewService creates a new origination service
func NewService(
	repo positions.Repository,
	ledger *positions.Service,
	instant []payments.InstantAdapter,
	manual []payments.ManualAdapter,
	notifier reconcile.Notifier,
	logger *zap.Logger,
) *Service {
	s := &Service{
		repo:     repo,
		ledger:   ledger,
		instant:  make(map[entities.PaymentChannel]payments.InstantAdapter),
		manual:   make(map[entities.PaymentChannel]payments.ManualAdapter),
		notifier: notifier,
		logger:   logger,
	}
	for _, a := range instant {
		s.instant[a.Channel()] = a
	}
	for _, a := range manual {
		s.manual[a.Channel()] = a
	}
	return s
}

// Preview quotes the return model without persisting anything
func (s *Service) Preview(req *entities.PreviewRequest) (*returns.Quote, error) {
	return returns.Preview(req.Tier, req.Principal, req.DurationWeeks, time.Now())
}

// Create originates a position over the requested payment channel
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req *entities.CreatePositionRequest) (*CreateResult, error) {
	if err := req.Category.Validate(); err != nil {
		return nil, domainerrors.ValidationError("category", err.Error())
	}
	if err := req.Channel.Validate(); err != nil {
		return nil, domainerrors.ValidationError("channel", err.Error())
	}
	// Quote up front so invalid tier, principal or duration fail before any
	// external call or database write.
	quote, err := returns.Preview(req.Tier, req.Principal, req.DurationWeeks, time.Now())
	if err != nil {
		return nil, err
	}

	if req.Channel.IsInstant() {
		return s.createInstant(ctx, ownerID, req)
	}
	return s.createManual(ctx, ownerID, req, quote)
}

func (s *Service) createInstant(ctx context.Context, ownerID uuid.UUID, req *entities.CreatePositionRequest) (*CreateResult, error) {
	adapter, ok := s.instant[req.Channel]
	if !ok {
		return nil, domainerrors.ValidationError("channel", "payment channel is not configured")
	}

	charge, err := adapter.CreateCharge(ctx, &payments.ChargeRequest{
		OwnerID:          ownerID,
		AmountMinorUnits: req.Principal.Mul(minorUnitScale).IntPart(),
		Currency:         "USD",
		Category:         req.Category,
		Tier:             req.Tier,
		DurationWeeks:    req.DurationWeeks,
		AutoReinvest:     req.AutoReinvest,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("charge created",
		zap.String("owner_id", ownerID.String()),
		zap.String("channel", string(req.Channel)),
		zap.String("reference", charge.Reference),
	)
	return &CreateResult{Charge: charge}, nil
}

func (s *Service) createManual(ctx context.Context, ownerID uuid.UUID, req *entities.CreatePositionRequest, quote *returns.Quote) (*CreateResult, error) {
	adapter, ok := s.manual[req.Channel]
	if !ok {
		return nil, domainerrors.ValidationError("channel", "payment channel is not configured")
	}

	now := time.Now()
	position := &entities.Position{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		Category:         req.Category,
		Tier:             req.Tier,
		Principal:        req.Principal,
		DurationWeeks:    req.DurationWeeks,
		AnnualRatePct:    quote.RatePct,
		ExpectedPayout:   quote.ExpectedPayout,
		CurrentValue:     req.Principal,
		PerPeriodAccrual: quote.PerPeriodAccrual,
		Status:           entities.PositionStatusPending,
		PaymentChannel:   req.Channel,
		PaymentState:     entities.PaymentStateAwaitingPayment,
		AutoReinvest:     req.AutoReinvest,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := position.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, position); err != nil {
		return nil, err
	}

	instructions := adapter.Instructions(position.ID)

	s.logger.Info("pending position created",
		zap.String("position_id", position.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.String("channel", string(req.Channel)),
	)

	if s.notifier != nil {
		s.notifier.Push(ctx, ownerID, &entities.RealtimeMessage{
			Kind:         entities.MessageKindInstructionsReady,
			PositionID:   position.ID,
			Channel:      position.PaymentChannel,
			Status:       position.Status,
			Message:      "Payment instructions are ready",
			Instructions: instructions,
			Timestamp:    now.UTC(),
		})
	}

	return &CreateResult{Position: position, Instructions: instructions}, nil
}

// AttachProof records the user's proof of payment on their pending position
func (s *Service) AttachProof(ctx context.Context, ownerID, positionID uuid.UUID, proof *entities.PaymentProof) (*entities.Position, error) {
	position, err := s.ledger.Get(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if position.OwnerID != ownerID {
		return nil, domainerrors.ErrForbidden
	}
	if err := s.ledger.AttachProof(ctx, position, proof.Reference); err != nil {
		return nil, err
	}
	return position, nil
}

// Get retrieves a position, enforcing ownership
func (s *Service) Get(ctx context.Context, ownerID, positionID uuid.UUID) (*entities.Position, error) {
	position, err := s.ledger.Get(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if position.OwnerID != ownerID {
		return nil, domainerrors.ErrForbidden
	}
	return position, nil
}

// List retrieves the owner's positions, newest first
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.Position, error) {
	return s.ledger.ListByOwner(ctx, ownerID, limit, offset)
}

// Instructions re-derives the payment instructions for a pending manual position
func (s *Service) Instructions(ctx context.Context, ownerID, positionID uuid.UUID) (*entities.PaymentInstructions, error) {
	position, err := s.Get(ctx, ownerID, positionID)
	if err != nil {
		return nil, err
	}
	if !position.PaymentChannel.IsManual() {
		return nil, domainerrors.StateViolationError("instructions only apply to manual payment channels")
	}
	adapter, ok := s.manual[position.PaymentChannel]
	if !ok {
		return nil, domainerrors.ValidationError("channel", "payment channel is not configured")
	}
	return adapter.Instructions(position.ID), nil
}
