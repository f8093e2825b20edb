// Package payments defines the normalized shapes shared by all payment
// channel adapters. Adapters are swappable behind these interfaces; none of
// them ever mutates the ledger.
package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
)

// ChargeRequest asks an instant channel to create a charge or order.
// Correlation metadata is carried round-trip through the processor and comes
// back on the signed callback.
type ChargeRequest struct {
	OwnerID          uuid.UUID
	AmountMinorUnits int64
	Currency         string
	Category         entities.PlanCategory
	Tier             entities.PlanTier
	DurationWeeks    int
	AutoReinvest     bool
}

// Validate rejects malformed requests before any external call is made
func (r *ChargeRequest) Validate() error {
	if r.OwnerID == uuid.Nil {
		return domainerrors.ValidationError("owner_id", "owner ID is required")
	}
	if r.AmountMinorUnits <= 0 {
		return domainerrors.ValidationError("amount", "amount must be positive")
	}
	if r.Currency != "USD" {
		return domainerrors.ValidationError("currency", "unsupported currency: "+r.Currency)
	}
	if err := r.Category.Validate(); err != nil {
		return domainerrors.ValidationError("category", err.Error())
	}
	if err := r.Tier.Validate(); err != nil {
		return domainerrors.ValidationError("tier", err.Error())
	}
	if r.DurationWeeks < 1 {
		return domainerrors.ValidationError("duration_weeks", "duration must be at least 1 week")
	}
	return nil
}

// InstantAdapter is a channel confirmed later by an inbound signed callback.
// CreateCharge only returns a correlation handle.
type InstantAdapter interface {
	Channel() entities.PaymentChannel
	CreateCharge(ctx context.Context, req *ChargeRequest) (*entities.ChargeHandle, error)
}

// ManualAdapter is a channel whose payment is proven by the user and approved
// by an administrator. Instructions are available immediately.
type ManualAdapter interface {
	Channel() entities.PaymentChannel
	Instructions(positionID uuid.UUID) *entities.PaymentInstructions
}
