// Package card integrates the card processor as an instant payment channel.
package card

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

// Config represents card processor API configuration
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Adapter creates charges against the card processor. The processor confirms
// asynchronously via a signed callback; this adapter never touches the ledger.
type Adapter struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewAdapter creates a new card adapter
func NewAdapter(config Config, logger *zap.Logger) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.cardprocessor.example.com"
	}

	settings := gobreaker.Settings{
		Name:        "card-processor",
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
	return entities.ChannelCard
}

type createChargeRequest struct {
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata"`
}

type createChargeResponse struct {
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkout_url"`
	ExpiresAt   int64  `json:"expires_at"`
}

// CreateCharge creates a card charge and returns the correlation handle.
// Validation failures are rejected before any external call; transport
// failures surface as retryable errors with no state change.
func (a *Adapter) CreateCharge(ctx context.Context, req *payments.ChargeRequest) (*entities.ChargeHandle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	reference := fmt.Sprintf("card_%s", uuid.New().String())
	body := createChargeRequest{
		Amount:    req.AmountMinorUnits,
		Currency:  req.Currency,
		Reference: reference,
		Metadata: map[string]string{
			"owner_id":       req.OwnerID.String(),
			"category":       string(req.Category),
			"tier":           string(req.Tier),
			"duration_weeks": fmt.Sprintf("%d", req.DurationWeeks),
			"auto_reinvest":  fmt.Sprintf("%t", req.AutoReinvest),
		},
	}

	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.postCharge(ctx, &body)
	})
	if err != nil {
		a.logger.Warn("card charge creation failed",
			zap.String("owner_id", req.OwnerID.String()),
			zap.Error(err),
		)
		return nil, domainerrors.ExternalUnavailableError("card processor", err)
	}

	resp := result.(*createChargeResponse)
	a.logger.Info("card charge created",
		zap.String("owner_id", req.OwnerID.String()),
		zap.String("reference", resp.Reference),
	)

	return &entities.ChargeHandle{
		Channel:     entities.ChannelCard,
		Reference:   resp.Reference,
		CheckoutURL: resp.CheckoutURL,
		ExpiresAt:   time.Unix(resp.ExpiresAt, 0),
	}, nil
}

func (a *Adapter) postCharge(ctx context.Context, body *createChargeRequest) (*createChargeResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/charges", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("card processor unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read charge response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("card processor returned %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp createChargeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}
	return &resp, nil
}
