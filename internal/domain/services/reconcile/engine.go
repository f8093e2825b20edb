// Package reconcile turns external payment confirmations into authoritative
// ledger state, exactly once. Webhook callbacks and admin approvals funnel
// through the same entry point and are idempotent on the external reference.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
	"github.com/vestra-platform/vestra_service/internal/domain/returns"
	"github.com/vestra-platform/vestra_service/internal/domain/services/positions"
)

// notifyTimeout bounds the best-effort push after a commit. A slow or dead
// notification channel must never block or fail reconciliation.
const notifyTimeout = 2 * time.Second

// A concurrent duplicate delivery loses the ledger insert race while the
// winner may still be inside its settlement transaction. The loser polls
// briefly for the winner's position before telling the caller to retry.
const (
	duplicateWaitAttempts = 3
	duplicateWaitDelay    = 50 * time.Millisecond
)

// TxRunner executes a function inside a single database transaction so the
// settlement writes land or roll back together.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LedgerRepository persists the append-only audit trail
type LedgerRepository interface {
	Create(ctx context.Context, event *entities.LedgerEvent) error
	GetByExternalRef(ctx context.Context, externalRef string) (*entities.LedgerEvent, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, positionID uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.LedgerEvent, error)
}

// UserRepository mutates owner running totals
type UserRepository interface {
	IncrementTotals(ctx context.Context, ownerID uuid.UUID, invested, payout decimal.Decimal) error
}

// Notifier pushes best-effort realtime messages to a user's room
type Notifier interface {
	Push(ctx context.Context, ownerID uuid.UUID, msg *entities.RealtimeMessage)
}

// DedupCache is an optional fast-path replay filter in front of the ledger
// lookup. The ledger's unique external reference index remains the source of
// truth; the cache only saves a query on hot replays.
type DedupCache interface {
	Seen(ctx context.Context, externalRef string) (bool, error)
	Remember(ctx context.Context, externalRef string, ttl time.Duration) error
}

// Engine is the reconciliation engine
type Engine struct {
	positionRepo positions.Repository
	ledger       *positions.Service
	ledgerRepo   LedgerRepository
	userRepo     UserRepository
	tx           TxRunner
	notifier     Notifier
	dedup        DedupCache
	logger       *zap.Logger
}

// NewEngine creates a new reconciliation engine
func NewEngine(
	positionRepo positions.Repository,
	ledger *positions.Service,
	ledgerRepo LedgerRepository,
	userRepo UserRepository,
	tx TxRunner,
	notifier Notifier,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		positionRepo: positionRepo,
		ledger:       ledger,
		ledgerRepo:   ledgerRepo,
		userRepo:     userRepo,
		tx:           tx,
		notifier:     notifier,
		logger:       logger,
	}
}

// SetDedupCache installs the optional replay fast-path cache
func (e *Engine) SetDedupCache(cache DedupCache) {
	e.dedup = cache
}

// ApplyPaymentEvent applies a confirmed payment event to the ledger exactly
// once. Replays of an already-completed external reference return the existing
// position unchanged. Events carrying a position id activate that pending
// position; events without one create a new active position from the
// correlation metadata.
func (e *Engine) ApplyPaymentEvent(ctx context.Context, event *entities.PaymentEvent) (*entities.Position, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if event.Outcome != entities.PaymentOutcomeConfirmed {
		return nil, domainerrors.ValidationError("outcome", "only confirmed events can be applied")
	}

	if e.dedup != nil {
		if seen, err := e.dedup.Seen(ctx, event.ExternalRef); err == nil && seen {
			if existing, err := e.completedPosition(ctx, event.ExternalRef); err == nil && existing != nil {
				e.logger.Debug("payment event replay short-circuited by cache",
					zap.String("external_reference", event.ExternalRef))
				return existing, nil
			}
		}
	}

	// Idempotency check against the authoritative ledger.
	existing, err := e.ledgerRepo.GetByExternalRef(ctx, event.ExternalRef)
	if err != nil && !domainerrors.IsNotFound(err) {
		return nil, err
	}

	var ledgerEvent *entities.LedgerEvent
	switch {
	case existing != nil && existing.State == entities.LedgerStateCompleted:
		return e.positionForEvent(ctx, existing)
	case existing != nil:
		// A previous run captured the reference but did not finish; resume it.
		ledgerEvent = existing
	default:
		ledgerEvent = &entities.LedgerEvent{
			ID:          uuid.New(),
			OwnerID:     event.OwnerID,
			PositionID:  event.PositionID,
			Kind:        entities.LedgerKindCredit,
			Amount:      event.Amount(),
			State:       entities.LedgerStatePending,
			Channel:     event.Channel,
			ExternalRef: event.ExternalRef,
			CreatedAt:   time.Now(),
		}
		if err := e.ledgerRepo.Create(ctx, ledgerEvent); err != nil {
			if domainerrors.IsDuplicateEvent(err) {
				// Concurrent duplicate delivery; the other writer wins.
				return e.completedPosition(ctx, event.ExternalRef)
			}
			return nil, err
		}
	}

	// The settlement, the ledger finalization, and the totals credit commit
	// as one transaction. A partial write here would either double-credit a
	// redelivery or lose the totals increment.
	var position *entities.Position
	txErr := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		position, err = e.settlePosition(ctx, event)
		if err != nil {
			return err
		}
		if err := e.ledgerRepo.MarkCompleted(ctx, ledgerEvent.ID, position.ID); err != nil {
			return err
		}
		return e.userRepo.IncrementTotals(ctx, event.OwnerID, event.Amount(), decimal.Zero)
	})
	if txErr != nil {
		return nil, txErr
	}

	if e.dedup != nil {
		if err := e.dedup.Remember(ctx, event.ExternalRef, 24*time.Hour); err != nil {
			e.logger.Debug("failed to cache payment reference", zap.Error(err))
		}
	}

	e.logger.Info("payment event applied",
		zap.String("external_reference", event.ExternalRef),
		zap.String("channel", string(event.Channel)),
		zap.String("position_id", position.ID.String()),
		zap.String("amount", event.Amount().String()),
	)

	e.pushStatus(position, "Your investment is now active")
	return position, nil
}

// settlePosition activates the referenced pending position, or creates a new
// active one from the event's correlation metadata.
func (e *Engine) settlePosition(ctx context.Context, event *entities.PaymentEvent) (*entities.Position, error) {
	now := time.Now()

	if event.PositionID != nil {
		position, err := e.positionRepo.GetByID(ctx, *event.PositionID)
		if err != nil {
			return nil, err
		}
		if position.Status == entities.PositionStatusActive {
			return position, nil
		}
		if !position.Status.CanTransitionTo(entities.PositionStatusActive) {
			return nil, domainerrors.StateViolationError(
				"position " + position.ID.String() + " cannot be activated from " + string(position.Status))
		}

		// The payout clock starts at approval, not submission.
		quote, err := returns.Commit(position.Tier, position.Principal, position.DurationWeeks, now)
		if err != nil {
			return nil, err
		}
		if err := e.positionRepo.Activate(ctx, position.ID, position.Version, now, quote.MaturesAt, event.ExternalRef); err != nil {
			return nil, err
		}
		position.Status = entities.PositionStatusActive
		position.PaymentState = entities.PaymentStateConfirmed
		position.StartedAt = &now
		position.MaturesAt = &quote.MaturesAt
		position.ExternalRef = &event.ExternalRef
		position.Version++
		return position, nil
	}

	// A resumed delivery may have created the position on an earlier attempt
	// that failed before finishing; the unique reference index finds it.
	if existing, err := e.positionRepo.GetByExternalRef(ctx, event.ExternalRef); err == nil {
		return existing, nil
	} else if !domainerrors.IsNotFound(err) {
		return nil, err
	}

	quote, err := returns.Commit(event.Tier, event.Amount(), event.DurationWeeks, now)
	if err != nil {
		return nil, err
	}

	ref := event.ExternalRef
	position := &entities.Position{
		ID:               uuid.New(),
		OwnerID:          event.OwnerID,
		Category:         event.Category,
		Tier:             event.Tier,
		Principal:        event.Amount(),
		DurationWeeks:    event.DurationWeeks,
		AnnualRatePct:    quote.RatePct,
		ExpectedPayout:   quote.ExpectedPayout,
		CurrentValue:     event.Amount(),
		PerPeriodAccrual: quote.PerPeriodAccrual,
		Status:           entities.PositionStatusActive,
		StartedAt:        &now,
		MaturesAt:        &quote.MaturesAt,
		PaymentChannel:   event.Channel,
		PaymentState:     entities.PaymentStateConfirmed,
		ExternalRef:      &ref,
		AutoReinvest:     event.AutoReinvest,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := position.Validate(); err != nil {
		return nil, err
	}
	if err := e.positionRepo.Create(ctx, position); err != nil {
		return nil, err
	}
	return position, nil
}

// Approve is the admin entry point for manual channels. It builds the payment
// event from the pending position's self-reported proof and funnels it through
// ApplyPaymentEvent.
func (e *Engine) Approve(ctx context.Context, positionID uuid.UUID) (*entities.Position, error) {
	position, err := e.positionRepo.GetByID(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if !position.PaymentChannel.IsManual() {
		return nil, domainerrors.StateViolationError("only manual-channel positions are approved by an administrator")
	}
	if position.Status != entities.PositionStatusPending {
		return nil, domainerrors.StateViolationError("position is not awaiting approval")
	}
	if position.ExternalRef == nil || *position.ExternalRef == "" {
		return nil, domainerrors.StateViolationError("position has no payment proof attached")
	}

	id := position.ID
	event := &entities.PaymentEvent{
		Channel:          position.PaymentChannel,
		ExternalRef:      *position.ExternalRef,
		AmountMinorUnits: position.Principal.Mul(decimal.NewFromInt(100)).IntPart(),
		Outcome:          entities.PaymentOutcomeConfirmed,
		OwnerID:          position.OwnerID,
		PositionID:       &id,
		Category:         position.Category,
		Tier:             position.Tier,
		DurationWeeks:    position.DurationWeeks,
		AutoReinvest:     position.AutoReinvest,
	}
	return e.ApplyPaymentEvent(ctx, event)
}

// Reject denies a pending position. It appends a failed ledger event for the
// audit trail and never mutates owner totals.
func (e *Engine) Reject(ctx context.Context, positionID uuid.UUID, reason *string) (*entities.Position, error) {
	position, err := e.positionRepo.GetByID(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if position.Status != entities.PositionStatusPending {
		return nil, domainerrors.StateViolationError("only pending positions can be rejected")
	}

	externalRef := fmt.Sprintf("reject_%s", position.ID.String())
	if position.ExternalRef != nil && *position.ExternalRef != "" {
		externalRef = *position.ExternalRef
	}

	id := position.ID
	ledgerEvent := &entities.LedgerEvent{
		ID:          uuid.New(),
		OwnerID:     position.OwnerID,
		PositionID:  &id,
		Kind:        entities.LedgerKindCredit,
		Amount:      position.Principal,
		State:       entities.LedgerStateFailed,
		Channel:     position.PaymentChannel,
		ExternalRef: externalRef,
		Note:        reason,
		CreatedAt:   time.Now(),
	}
	if err := e.ledgerRepo.Create(ctx, ledgerEvent); err != nil && !domainerrors.IsDuplicateEvent(err) {
		return nil, err
	}

	if err := e.ledger.Transition(ctx, position, entities.PositionStatusRejected, reason); err != nil {
		return nil, err
	}

	e.logger.Info("position rejected",
		zap.String("position_id", position.ID.String()),
		zap.String("owner_id", position.OwnerID.String()),
	)

	message := "Your investment was rejected"
	if reason != nil && *reason != "" {
		message = "Your investment was rejected: " + *reason
	}
	e.pushStatus(position, message)
	return position, nil
}

func (e *Engine) completedPosition(ctx context.Context, externalRef string) (*entities.Position, error) {
	for attempt := 0; ; attempt++ {
		event, err := e.ledgerRepo.GetByExternalRef(ctx, externalRef)
		if err != nil {
			return nil, err
		}
		if event.PositionID != nil {
			return e.positionForEvent(ctx, event)
		}
		if attempt+1 >= duplicateWaitAttempts {
			// The winning delivery has not committed yet; ask the caller
			// to redeliver rather than fail hard.
			return nil, domainerrors.ExternalUnavailableError("payment reconciliation", nil)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(duplicateWaitDelay):
		}
	}
}

func (e *Engine) positionForEvent(ctx context.Context, event *entities.LedgerEvent) (*entities.Position, error) {
	if event.PositionID == nil {
		return nil, domainerrors.InternalError("completed ledger event has no position", nil)
	}
	e.logger.Info("duplicate payment event ignored",
		zap.String("external_reference", event.ExternalRef),
		zap.String("position_id", event.PositionID.String()),
	)
	return e.positionRepo.GetByID(ctx, *event.PositionID)
}

// pushStatus sends a best-effort status change; failures are logged and dropped
func (e *Engine) pushStatus(position *entities.Position, message string) {
	if e.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	e.notifier.Push(ctx, position.OwnerID, &entities.RealtimeMessage{
		Kind:       entities.MessageKindPositionStatusChanged,
		PositionID: position.ID,
		Channel:    position.PaymentChannel,
		Status:     position.Status,
		Message:    message,
		Timestamp:  time.Now().UTC(),
	})
}
