package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalState represents the state of a withdrawal request
type WithdrawalState string

const (
	WithdrawalStatePending    WithdrawalState = "pending"
	WithdrawalStateProcessing WithdrawalState = "processing"
	WithdrawalStateCompleted  WithdrawalState = "completed"
	WithdrawalStateRejected   WithdrawalState = "rejected"
)

// Validate checks if the withdrawal state is valid
func (s WithdrawalState) Validate() error {
	switch s {
	case WithdrawalStatePending, WithdrawalStateProcessing, WithdrawalStateCompleted, WithdrawalStateRejected:
		return nil
	default:
		return fmt.Errorf("invalid withdrawal state: %s", s)
	}
}

// WithdrawalRequest represents a request to exit an active position.
// It is created only from an active position that has satisfied the minimum
// holding window, and its creation atomically flips the position to withdrawn.
type WithdrawalRequest struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OwnerID     uuid.UUID       `json:"owner_id" db:"owner_id"`
	PositionID  uuid.UUID       `json:"position_id" db:"position_id"`
	Principal   decimal.Decimal `json:"principal" db:"principal"`
	Profit      decimal.Decimal `json:"profit" db:"profit"`
	Method      PaymentChannel  `json:"method" db:"method"`
	Destination string          `json:"destination" db:"destination"`
	State       WithdrawalState `json:"state" db:"state"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate validates the withdrawal request
func (w *WithdrawalRequest) Validate() error {
	if w.ID == uuid.Nil {
		return fmt.Errorf("withdrawal ID is required")
	}
	if w.OwnerID == uuid.Nil {
		return fmt.Errorf("owner ID is required")
	}
	if w.PositionID == uuid.Nil {
		return fmt.Errorf("position ID is required")
	}
	if err := w.Method.Validate(); err != nil {
		return err
	}
	if err := w.State.Validate(); err != nil {
		return err
	}
	if w.Principal.IsNegative() || w.Principal.IsZero() {
		return fmt.Errorf("withdrawal principal must be positive")
	}
	if w.Profit.IsNegative() {
		return fmt.Errorf("withdrawal profit cannot be negative")
	}
	if w.Destination == "" {
		return fmt.Errorf("withdrawal destination is required")
	}
	return nil
}

// CreateWithdrawalRequest is the user-facing payload to request a withdrawal
type CreateWithdrawalRequest struct {
	Method      PaymentChannel `json:"method" binding:"required"`
	Destination string         `json:"destination" binding:"required"`
}
