package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentOutcome represents the normalized outcome of an adapter call or callback
type PaymentOutcome string

const (
	PaymentOutcomeConfirmed PaymentOutcome = "confirmed"
	PaymentOutcomeSubmitted PaymentOutcome = "submitted"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

// Validate checks if the payment outcome is valid
func (o PaymentOutcome) Validate() error {
	switch o {
	case PaymentOutcomeConfirmed, PaymentOutcomeSubmitted, PaymentOutcomeFailed:
		return nil
	default:
		return fmt.Errorf("invalid payment outcome: %s", o)
	}
}

// PaymentEvent is the normalized shape every payment channel produces.
// Instant channels deliver it through a signed callback; manual channels
// through an explicit admin approval. Correlation metadata carried round-trip
// by the adapter lets the reconciliation engine build the position without a
// prior database row for instant channels.
type PaymentEvent struct {
	Channel          PaymentChannel `json:"channel"`
	ExternalRef      string         `json:"external_reference"`
	AmountMinorUnits int64          `json:"amount_minor_units"`
	Outcome          PaymentOutcome `json:"outcome"`

	// Correlation metadata
	OwnerID       uuid.UUID    `json:"owner_id"`
	PositionID    *uuid.UUID   `json:"position_id,omitempty"`
	Category      PlanCategory `json:"category"`
	Tier          PlanTier     `json:"tier"`
	DurationWeeks int          `json:"duration_weeks"`
	AutoReinvest  bool         `json:"auto_reinvest"`
}

// Amount returns the event amount in major units
func (e *PaymentEvent) Amount() decimal.Decimal {
	return decimal.New(e.AmountMinorUnits, -2)
}

// Validate validates the payment event
func (e *PaymentEvent) Validate() error {
	if err := e.Channel.Validate(); err != nil {
		return err
	}
	if err := e.Outcome.Validate(); err != nil {
		return err
	}
	if e.ExternalRef == "" {
		return fmt.Errorf("external reference is required")
	}
	if e.OwnerID == uuid.Nil {
		return fmt.Errorf("owner ID is required")
	}
	if e.AmountMinorUnits <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// PaymentInstructions holds channel-specific instructions for a manual payment.
// Composed by an administrator and pushed to the owner over the realtime channel.
type PaymentInstructions struct {
	PositionID uuid.UUID      `json:"position_id"`
	Channel    PaymentChannel `json:"channel"`

	// Crypto fields
	Address string `json:"address,omitempty"`
	Network string `json:"network,omitempty"`

	// Wire fields
	BankName      string `json:"bank_name,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`

	Memo string `json:"memo,omitempty"`
}

// Validate validates the instructions for their channel
func (i *PaymentInstructions) Validate() error {
	if i.PositionID == uuid.Nil {
		return fmt.Errorf("position ID is required")
	}
	switch i.Channel {
	case ChannelCrypto:
		if i.Address == "" || i.Network == "" {
			return fmt.Errorf("crypto instructions require address and network")
		}
	case ChannelWire:
		if i.BankName == "" || i.AccountNumber == "" || i.RoutingNumber == "" {
			return fmt.Errorf("wire instructions require bank name, account number and routing number")
		}
	default:
		return fmt.Errorf("instructions only apply to manual channels, got %s", i.Channel)
	}
	return nil
}

// PaymentProof is the user's self-reported proof for a manual-channel payment
type PaymentProof struct {
	Reference string `json:"reference" binding:"required"`
	Sender    string `json:"sender" binding:"required"`
}

// ProcessorCallback is the inbound signed webhook payload from an instant
// payment processor. Correlation metadata is echoed back from the charge we
// created through the adapter.
type ProcessorCallback struct {
	Reference        string `json:"reference" validate:"required"`
	AmountMinorUnits int64  `json:"amount" validate:"required,gt=0"`
	Status           string `json:"status" validate:"required"`
	Currency         string `json:"currency"`

	Metadata ProcessorCallbackMetadata `json:"metadata" validate:"required"`
}

// ProcessorCallbackMetadata is the correlation metadata round-tripped by the adapter
type ProcessorCallbackMetadata struct {
	OwnerID       uuid.UUID    `json:"owner_id" validate:"required"`
	Category      PlanCategory `json:"category" validate:"required"`
	Tier          PlanTier     `json:"tier" validate:"required"`
	DurationWeeks int          `json:"duration_weeks" validate:"required,gte=1"`
	AutoReinvest  bool         `json:"auto_reinvest"`
}

// ChargeHandle is the correlation handle returned by an instant-channel
// adapter after creating a charge. The adapter never mutates the ledger.
type ChargeHandle struct {
	Channel     PaymentChannel `json:"channel"`
	Reference   string         `json:"reference"`
	CheckoutURL string         `json:"checkout_url,omitempty"`
	ExpiresAt   time.Time      `json:"expires_at"`
}
