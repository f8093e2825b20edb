// Package wallet integrates the wallet processor as an instant payment channel.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/adapters/payments"
	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
)

// Config represents wallet processor API configuration
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
}

// Adapter creates payment orders against the wallet processor
type Adapter struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewAdapter creates a new wallet adapter
func NewAdapter(config Config, logger *zap.Logger) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.walletpay.example.com"
	}

	settings := gobreaker.Settings{
		Name:        "wallet-processor",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}

	return &Adapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// Channel returns the payment channel this adapter serves
func (a *Adapter) Channel() entities.PaymentChannel {
	return entities.ChannelWallet
}

type createOrderRequest struct {
	AmountMinor int64             `json:"amount_minor"`
	Currency    string            `json:"currency"`
	OrderRef    string            `json:"order_ref"`
	Metadata    map[string]string `json:"metadata"`
}

type createOrderResponse struct {
	OrderRef   string `json:"order_ref"`
	PaymentURL string `json:"payment_url"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// CreateCharge creates a wallet payment order and returns the correlation handle
func (a *Adapter) CreateCharge(ctx context.Context, req *payments.ChargeRequest) (*entities.ChargeHandle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	orderRef := fmt.Sprintf("wallet_%s", uuid.New().String())
	body := createOrderRequest{
		AmountMinor: req.AmountMinorUnits,
		Currency:    req.Currency,
		OrderRef:    orderRef,
		Metadata: map[string]string{
			"owner_id":       req.OwnerID.String(),
			"category":       string(req.Category),
			"tier":           string(req.Tier),
			"duration_weeks": fmt.Sprintf("%d", req.DurationWeeks),
			"auto_reinvest":  fmt.Sprintf("%t", req.AutoReinvest),
		},
	}

	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.postOrder(ctx, &body)
	})
	if err != nil {
		a.logger.Warn("wallet order creation failed",
			zap.String("owner_id", req.OwnerID.String()),
			zap.Error(err),
		)
		return nil, domainerrors.ExternalUnavailableError("wallet processor", err)
	}

	resp := result.(*createOrderResponse)
	a.logger.Info("wallet order created",
		zap.String("owner_id", req.OwnerID.String()),
		zap.String("order_ref", resp.OrderRef),
	)

	return &entities.ChargeHandle{
		Channel:     entities.ChannelWallet,
		Reference:   resp.OrderRef,
		CheckoutURL: resp.PaymentURL,
		ExpiresAt:   time.Now().Add(time.Duration(resp.TTLSeconds) * time.Second),
	}, nil
}

func (a *Adapter) postOrder(ctx context.Context, body *createOrderRequest) (*createOrderResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", a.config.APIKey)
	httpReq.Header.Set("X-Api-Secret", a.config.APISecret)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wallet processor unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read order response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("wallet processor returned %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp createOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	return &resp, nil
}
