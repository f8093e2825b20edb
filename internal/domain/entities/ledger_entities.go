package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEventKind represents the kind of ledger event
type LedgerEventKind string

const (
	LedgerKindCredit  LedgerEventKind = "credit"
	LedgerKindDebit   LedgerEventKind = "debit"
	LedgerKindAccrual LedgerEventKind = "accrual"
	LedgerKindFee     LedgerEventKind = "fee"
)

// Validate checks if the ledger event kind is valid
func (k LedgerEventKind) Validate() error {
	switch k {
	case LedgerKindCredit, LedgerKindDebit, LedgerKindAccrual, LedgerKindFee:
		return nil
	default:
		return fmt.Errorf("invalid ledger event kind: %s", k)
	}
}

// LedgerEventState represents the state of a ledger event
type LedgerEventState string

const (
	LedgerStatePending   LedgerEventState = "pending"
	LedgerStateCompleted LedgerEventState = "completed"
	LedgerStateFailed    LedgerEventState = "failed"
	LedgerStateCancelled LedgerEventState = "cancelled"
)

// Validate checks if the ledger event state is valid
func (s LedgerEventState) Validate() error {
	switch s {
	case LedgerStatePending, LedgerStateCompleted, LedgerStateFailed, LedgerStateCancelled:
		return nil
	default:
		return fmt.Errorf("invalid ledger event state: %s", s)
	}
}

// LedgerEvent is an append-only audit record of a balance-affecting event.
// Events are never mutated after reaching completed; the external reference
// and channel are kept verbatim so callback replays stay forensically traceable.
type LedgerEvent struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	OwnerID     uuid.UUID        `json:"owner_id" db:"owner_id"`
	PositionID  *uuid.UUID       `json:"position_id,omitempty" db:"position_id"`
	Kind        LedgerEventKind  `json:"kind" db:"kind"`
	Amount      decimal.Decimal  `json:"amount" db:"amount"`
	State       LedgerEventState `json:"state" db:"state"`
	Channel     PaymentChannel   `json:"channel" db:"channel"`
	ExternalRef string           `json:"external_reference" db:"external_reference"`
	Note        *string          `json:"note,omitempty" db:"note"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// Validate validates the ledger event
func (e *LedgerEvent) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("ledger event ID is required")
	}
	if e.OwnerID == uuid.Nil {
		return fmt.Errorf("owner ID is required")
	}
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if err := e.State.Validate(); err != nil {
		return err
	}
	if err := e.Channel.Validate(); err != nil {
		return err
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("ledger event amount cannot be negative")
	}
	return nil
}
