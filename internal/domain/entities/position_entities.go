package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanTier represents a named return bracket with a fixed annual rate
type PlanTier string

const (
	TierStarter  PlanTier = "starter"
	TierSilver   PlanTier = "silver"
	TierGold     PlanTier = "gold"
	TierPlatinum PlanTier = "platinum"
)

// Validate checks if the plan tier is valid
func (t PlanTier) Validate() error {
	switch t {
	case TierStarter, TierSilver, TierGold, TierPlatinum:
		return nil
	default:
		return fmt.Errorf("invalid plan tier: %s", t)
	}
}

// PlanCategory represents the asset category a position is bucketed under.
// The category determines the valuation jitter bound applied during accrual.
type PlanCategory string

const (
	CategoryFixedIncome PlanCategory = "fixed_income"
	CategoryRealEstate  PlanCategory = "real_estate"
	CategoryStocks      PlanCategory = "stocks"
	CategoryForex       PlanCategory = "forex"
	CategoryCrypto      PlanCategory = "crypto"
)

// Validate checks if the plan category is valid
func (c PlanCategory) Validate() error {
	switch c {
	case CategoryFixedIncome, CategoryRealEstate, CategoryStocks, CategoryForex, CategoryCrypto:
		return nil
	default:
		return fmt.Errorf("invalid plan category: %s", c)
	}
}

// PositionStatus represents the lifecycle state of a position
type PositionStatus string

const (
	PositionStatusPending   PositionStatus = "pending"
	PositionStatusActive    PositionStatus = "active"
	PositionStatusCompleted PositionStatus = "completed"
	PositionStatusWithdrawn PositionStatus = "withdrawn"
	PositionStatusRejected  PositionStatus = "rejected"
)

// Validate checks if the position status is valid
func (s PositionStatus) Validate() error {
	switch s {
	case PositionStatusPending, PositionStatusActive, PositionStatusCompleted,
		PositionStatusWithdrawn, PositionStatusRejected:
		return nil
	default:
		return fmt.Errorf("invalid position status: %s", s)
	}
}

// IsTerminal returns true if no transition may leave this status
func (s PositionStatus) IsTerminal() bool {
	return s == PositionStatusCompleted || s == PositionStatusWithdrawn || s == PositionStatusRejected
}

// CanTransitionTo reports whether the state machine permits moving to next.
// pending -> active | rejected; active -> completed | withdrawn; terminal
// states have no outgoing transitions.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case PositionStatusPending:
		return next == PositionStatusActive || next == PositionStatusRejected
	case PositionStatusActive:
		return next == PositionStatusCompleted || next == PositionStatusWithdrawn
	default:
		return false
	}
}

// PaymentState represents the payment confirmation state of a position
type PaymentState string

const (
	PaymentStateAwaitingPayment PaymentState = "awaiting_payment"
	PaymentStateConfirmed       PaymentState = "confirmed"
	PaymentStateFailed          PaymentState = "failed"
)

// Validate checks if the payment state is valid
func (p PaymentState) Validate() error {
	switch p {
	case PaymentStateAwaitingPayment, PaymentStateConfirmed, PaymentStateFailed:
		return nil
	default:
		return fmt.Errorf("invalid payment state: %s", p)
	}
}

// PaymentChannel represents the channel a position was funded through
type PaymentChannel string

const (
	ChannelCard   PaymentChannel = "card"
	ChannelWallet PaymentChannel = "wallet"
	ChannelCrypto PaymentChannel = "crypto"
	ChannelWire   PaymentChannel = "wire"
)

// Validate checks if the payment channel is valid
func (c PaymentChannel) Validate() error {
	switch c {
	case ChannelCard, ChannelWallet, ChannelCrypto, ChannelWire:
		return nil
	default:
		return fmt.Errorf("invalid payment channel: %s", c)
	}
}

// IsInstant returns true for channels confirmed by an automated signed callback
func (c PaymentChannel) IsInstant() bool {
	return c == ChannelCard || c == ChannelWallet
}

// IsManual returns true for channels requiring user proof and admin approval
func (c PaymentChannel) IsManual() bool {
	return c == ChannelCrypto || c == ChannelWire
}

// Position represents a single investment commitment with a principal,
// a tier-derived rate, and a maturity date
type Position struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	OwnerID          uuid.UUID       `json:"owner_id" db:"owner_id"`
	Category         PlanCategory    `json:"category" db:"category"`
	Tier             PlanTier        `json:"tier" db:"tier"`
	Principal        decimal.Decimal `json:"principal" db:"principal"`
	DurationWeeks    int             `json:"duration_weeks" db:"duration_weeks"`
	AnnualRatePct    decimal.Decimal `json:"annual_rate_pct" db:"annual_rate_pct"`
	ExpectedPayout   decimal.Decimal `json:"expected_payout" db:"expected_payout"`
	CurrentValue     decimal.Decimal `json:"current_value" db:"current_value"`
	PerPeriodAccrual decimal.Decimal `json:"per_period_accrual" db:"per_period_accrual"`
	Status           PositionStatus  `json:"status" db:"status"`
	StartedAt        *time.Time      `json:"started_at,omitempty" db:"started_at"`
	MaturesAt        *time.Time      `json:"matures_at,omitempty" db:"matures_at"`
	LastValuedAt     *time.Time      `json:"last_valued_at,omitempty" db:"last_valued_at"`
	PaymentChannel   PaymentChannel  `json:"payment_channel" db:"payment_channel"`
	PaymentState     PaymentState    `json:"payment_state" db:"payment_state"`
	ExternalRef      *string         `json:"external_reference,omitempty" db:"external_reference"`
	RejectionReason  *string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	AutoReinvest     bool            `json:"auto_reinvest" db:"auto_reinvest"`
	Version          int64           `json:"version" db:"version"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate validates the position invariants
func (p *Position) Validate() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("position ID is required")
	}
	if p.OwnerID == uuid.Nil {
		return fmt.Errorf("owner ID is required")
	}
	if err := p.Category.Validate(); err != nil {
		return err
	}
	if err := p.Tier.Validate(); err != nil {
		return err
	}
	if err := p.Status.Validate(); err != nil {
		return err
	}
	if err := p.PaymentChannel.Validate(); err != nil {
		return err
	}
	if err := p.PaymentState.Validate(); err != nil {
		return err
	}
	if p.Principal.IsNegative() || p.Principal.IsZero() {
		return fmt.Errorf("principal must be positive")
	}
	if p.DurationWeeks < 1 {
		return fmt.Errorf("duration must be at least 1 week")
	}
	if p.CurrentValue.GreaterThan(p.Principal.Add(p.ExpectedPayout)) {
		return fmt.Errorf("current value %s exceeds principal plus expected payout", p.CurrentValue.String())
	}
	return nil
}

// Ceiling returns the maximum value the position may ever reach
func (p *Position) Ceiling() decimal.Decimal {
	return p.Principal.Add(p.ExpectedPayout)
}

// IsMatured returns true once the maturity timestamp has passed
func (p *Position) IsMatured(now time.Time) bool {
	return p.MaturesAt != nil && !now.Before(*p.MaturesAt)
}

// HoldingWindowSatisfied reports whether the position has been active long
// enough to be eligible for withdrawal. This is a stricter, separate predicate
// from maturity.
func (p *Position) HoldingWindowSatisfied(now time.Time, window time.Duration) bool {
	if p.StartedAt == nil {
		return false
	}
	return now.Sub(*p.StartedAt) >= window
}

// CreatePositionRequest represents a request to open a new position
type CreatePositionRequest struct {
	Category      PlanCategory    `json:"category" binding:"required"`
	Tier          PlanTier        `json:"tier" binding:"required"`
	Principal     decimal.Decimal `json:"principal" binding:"required"`
	DurationWeeks int             `json:"duration_weeks" binding:"required"`
	Channel       PaymentChannel  `json:"channel" binding:"required"`
	AutoReinvest  bool            `json:"auto_reinvest"`
}

// PreviewRequest represents a return-model preview request
type PreviewRequest struct {
	Tier          PlanTier        `json:"tier" binding:"required"`
	Principal     decimal.Decimal `json:"principal" binding:"required"`
	DurationWeeks int             `json:"duration_weeks" binding:"required"`
}
