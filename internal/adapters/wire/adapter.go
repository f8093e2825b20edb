// Package wire implements the manually-verified bank wire channel.
package wire

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
)

// Config represents the platform's receiving bank account
type Config struct {
	BankName      string
	AccountName   string
	AccountNumber string
	RoutingNumber string
}

// Adapter serves wiring instructions for the bank wire channel
type Adapter struct {
	config Config
	logger *zap.Logger
}

// NewAdapter creates a new wire adapter
func NewAdapter(config Config, logger *zap.Logger) *Adapter {
	return &Adapter{config: config, logger: logger}
}

// Channel returns the payment channel this adapter serves
func (a *Adapter) Channel() entities.PaymentChannel {
	return entities.ChannelWire
}

// Instructions returns the bank routing data for a position
func (a *Adapter) Instructions(positionID uuid.UUID) *entities.PaymentInstructions {
	return &entities.PaymentInstructions{
		PositionID:    positionID,
		Channel:       entities.ChannelWire,
		BankName:      a.config.BankName,
		AccountName:   a.config.AccountName,
		AccountNumber: a.config.AccountNumber,
		RoutingNumber: a.config.RoutingNumber,
		Memo:          positionID.String()[:8],
	}
}
