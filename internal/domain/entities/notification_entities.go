package entities

import (
	"time"

	"github.com/google/uuid"
)

// Realtime message kinds pushed to a user's room
const (
	MessageKindInstructionsReady     = "payment_instructions_ready"
	MessageKindPositionStatusChanged = "position_status_changed"
)

// RealtimeMessage is the JSON envelope pushed over the notification channel.
// Delivery is fire-and-forget; authoritative state is always recoverable via
// the pull endpoints.
type RealtimeMessage struct {
	Kind       string         `json:"kind"`
	PositionID uuid.UUID      `json:"position_id"`
	Channel    PaymentChannel `json:"channel,omitempty"`
	Status     PositionStatus `json:"status,omitempty"`
	Message    string         `json:"message,omitempty"`

	Instructions *PaymentInstructions `json:"instructions,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
