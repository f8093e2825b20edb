// Package positions owns the position state machine and current-value
// recomputation. Every mutation goes through an optimistic version check; the
// reconciliation engine and the valuation scheduler race over the same rows
// and a stale write must lose loudly, not silently overwrite.
package positions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
	"github.com/vestra-platform/vestra_service/internal/domain/returns"
)

// casAttempts bounds internal retries after a version-check failure
const casAttempts = 3

// Repository is the persistence interface the position ledger requires.
// Update methods are compare-and-swap on the record version and must return
// a conflict error when the version is stale.
type Repository interface {
	Create(ctx context.Context, position *entities.Position) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Position, error)
	GetByExternalRef(ctx context.Context, externalRef string) (*entities.Position, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.Position, error)
	ListByStatus(ctx context.Context, status entities.PositionStatus) ([]*entities.Position, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*entities.Position, error)
	UpdateValue(ctx context.Context, id uuid.UUID, version int64, value decimal.Decimal, valuedAt time.Time) error
	Activate(ctx context.Context, id uuid.UUID, version int64, startedAt, maturesAt time.Time, externalRef string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, version int64, status entities.PositionStatus, paymentState entities.PaymentState, reason *string) error
	SetExternalRef(ctx context.Context, id uuid.UUID, version int64, externalRef string) error
}

// Service implements the position ledger
type Service struct {
	repo   Repository
	noise  NoiseGenerator
	logger *zap.Logger
}

// NewService creates a new position ledger service
func NewService(repo Repository, noise NoiseGenerator, logger *zap.Logger) *Service {
	if noise == nil {
		noise = NewSeededNoise()
	}
	return &Service{
		repo:   repo,
		noise:  noise,
		logger: logger,
	}
}

// ComputeValue derives the position's value at the given instant without side
// effects. The raw value is principal + accrual*elapsed*noise, clamped to the
// payout ceiling and floored at the last persisted value so valuations never
// move backwards.
func (s *Service) ComputeValue(p *entities.Position, now time.Time) decimal.Decimal {
	if p.StartedAt == nil {
		return p.Principal
	}

	elapsed := int64(now.Sub(*p.StartedAt) / returns.SubPeriodLength)
	if elapsed < 0 {
		elapsed = 0
	}

	factor := s.noise.Factor(p.ID, elapsed, p.Category)
	raw := p.Principal.Add(p.PerPeriodAccrual.Mul(decimal.NewFromInt(elapsed)).Mul(factor))

	if ceiling := p.Ceiling(); raw.GreaterThan(ceiling) {
		raw = ceiling
	}
	if raw.LessThan(p.CurrentValue) {
		raw = p.CurrentValue
	}
	return raw
}

// AdvanceValue recomputes and persists the position's current value. Only
// active positions accrue; anything else is returned unchanged. A stale
// version is retried against a fresh read a bounded number of times.
func (s *Service) AdvanceValue(ctx context.Context, p *entities.Position, now time.Time) (decimal.Decimal, error) {
	if p.Status != entities.PositionStatusActive {
		return p.CurrentValue, nil
	}

	current := p
	for attempt := 0; attempt < casAttempts; attempt++ {
		value := s.ComputeValue(current, now)

		err := s.repo.UpdateValue(ctx, current.ID, current.Version, value, now)
		if err == nil {
			current.CurrentValue = value
			current.LastValuedAt = &now
			current.Version++
			p.CurrentValue = value
			p.LastValuedAt = &now
			p.Version = current.Version
			return value, nil
		}
		if !domainerrors.IsConflict(err) {
			return decimal.Zero, err
		}

		fresh, getErr := s.repo.GetByID(ctx, current.ID)
		if getErr != nil {
			return decimal.Zero, getErr
		}
		if fresh.Status != entities.PositionStatusActive {
			// A concurrent transition won; accept it.
			*p = *fresh
			return fresh.CurrentValue, nil
		}
		current = fresh
	}

	return decimal.Zero, domainerrors.ConflictError("position")
}

// MarkMatured transitions an active position to completed once its maturity
// timestamp has passed, settling its value at the payout ceiling. Returns true
// when a transition happened.
func (s *Service) MarkMatured(ctx context.Context, p *entities.Position, now time.Time) (bool, error) {
	if p.Status != entities.PositionStatusActive || !p.IsMatured(now) {
		return false, nil
	}

	if err := s.repo.UpdateValue(ctx, p.ID, p.Version, p.Ceiling(), now); err != nil {
		return false, err
	}
	p.Version++

	if err := s.Transition(ctx, p, entities.PositionStatusCompleted, nil); err != nil {
		return false, err
	}
	p.CurrentValue = p.Ceiling()

	s.logger.Info("position matured",
		zap.String("position_id", p.ID.String()),
		zap.String("owner_id", p.OwnerID.String()),
		zap.String("final_value", p.CurrentValue.String()),
	)
	return true, nil
}

// Transition moves a position to the next status after checking the state
// machine. Terminal statuses never transition out.
func (s *Service) Transition(ctx context.Context, p *entities.Position, next entities.PositionStatus, reason *string) error {
	if !p.Status.CanTransitionTo(next) {
		return domainerrors.StateViolationError(
			"cannot transition position from " + string(p.Status) + " to " + string(next))
	}

	paymentState := p.PaymentState
	// Payment state settles together with activation or rejection; once
	// active it is immutable.
	switch next {
	case entities.PositionStatusActive:
		paymentState = entities.PaymentStateConfirmed
	case entities.PositionStatusRejected:
		paymentState = entities.PaymentStateFailed
	}

	if err := s.repo.UpdateStatus(ctx, p.ID, p.Version, next, paymentState, reason); err != nil {
		return err
	}

	p.Status = next
	p.PaymentState = paymentState
	p.RejectionReason = reason
	p.Version++
	return nil
}

// AttachProof records the user's self-reported proof reference on a pending
// manual-channel position.
func (s *Service) AttachProof(ctx context.Context, p *entities.Position, reference string) error {
	if p.Status != entities.PositionStatusPending {
		return domainerrors.StateViolationError("proof can only be attached to a pending position")
	}
	if !p.PaymentChannel.IsManual() {
		return domainerrors.StateViolationError("proof only applies to manual payment channels")
	}
	if reference == "" {
		return domainerrors.ValidationError("reference", "proof reference is required")
	}

	if err := s.repo.SetExternalRef(ctx, p.ID, p.Version, reference); err != nil {
		return err
	}
	p.ExternalRef = &reference
	p.Version++
	return nil
}

// Get retrieves a position by id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entities.Position, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByOwner retrieves a user's positions, newest first
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.Position, error) {
	return s.repo.GetByOwner(ctx, ownerID, limit, offset)
}
