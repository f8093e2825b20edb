// Package cryptopay implements the manually-verified cryptocurrency transfer
// channel. Instructions are returned immediately; the payment is proven by the
// user and approved by an administrator.
package cryptopay

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
)

// Config represents the platform's crypto deposit settings
type Config struct {
	DepositAddress string
	Network        string
}

// Adapter serves deposit instructions for the crypto channel
type Adapter struct {
	config Config
	logger *zap.Logger
}

// NewAdapter creates a new crypto payment adapter
func NewAdapter(config Config, logger *zap.Logger) *Adapter {
	return &Adapter{config: config, logger: logger}
}

// Channel returns the payment channel this adapter serves
func (a *Adapter) Channel() entities.PaymentChannel {
	return entities.ChannelCrypto
}

// Instructions returns the deposit address and network for a position. The
// memo ties the on-chain transfer back to the position for admin review.
func (a *Adapter) Instructions(positionID uuid.UUID) *entities.PaymentInstructions {
	return &entities.PaymentInstructions{
		PositionID: positionID,
		Channel:    entities.ChannelCrypto,
		Address:    a.config.DepositAddress,
		Network:    a.config.Network,
		Memo:       positionID.String()[:8],
	}
}
