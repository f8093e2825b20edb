package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a platform account with running investment totals.
// Totals are incremented only by the reconciliation engine.
type User struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Email         string          `json:"email" db:"email"`
	Role          string          `json:"role" db:"role"`
	TotalInvested decimal.Decimal `json:"total_invested" db:"total_invested"`
	TotalPayout   decimal.Decimal `json:"total_payout" db:"total_payout"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// AccountSummary is the pull/refresh view of a user's holdings
type AccountSummary struct {
	UserID           uuid.UUID       `json:"user_id"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	TotalPayout      decimal.Decimal `json:"total_payout"`
	ActivePositions  int             `json:"active_positions"`
	PendingPositions int             `json:"pending_positions"`
	CurrentValue     decimal.Decimal `json:"current_value"`
}

// ErrorResponse is the standard error payload returned by the API
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
