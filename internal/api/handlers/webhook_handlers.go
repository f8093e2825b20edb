package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
	"github.com/vestra-platform/vestra_service/internal/domain/services/reconcile"
	"github.com/vestra-platform/vestra_service/pkg/metrics"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw body
const signatureHeader = "X-Webhook-Signature"

// WebhookHandler receives signed processor callbacks for the instant channels.
// Authenticity failures are the only rejections; every business outcome,
// including duplicates, acknowledges with 2xx so the processor stops retrying.
type WebhookHandler struct {
	engine       *reconcile.Engine
	cardSecret   string
	walletSecret string
	validate     *validator.Validate
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(engine *reconcile.Engine, cardSecret, walletSecret string, m *metrics.Metrics, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		engine:       engine,
		cardSecret:   cardSecret,
		walletSecret: walletSecret,
		validate:     validator.New(),
		metrics:      m,
		logger:       logger,
	}
}

// HandleCard processes card processor callbacks
// POST /api/v1/webhooks/card
func (h *WebhookHandler) HandleCard(c *gin.Context) {
	h.handle(c, entities.ChannelCard, h.cardSecret)
}

// HandleWallet processes wallet provider callbacks
// POST /api/v1/webhooks/wallet
func (h *WebhookHandler) HandleWallet(c *gin.Context) {
	h.handle(c, entities.ChannelWallet, h.walletSecret)
}

func (h *WebhookHandler) handle(c *gin.Context, channel entities.PaymentChannel, secret string) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		SendBadRequest(c, ErrCodeValidationError, "failed to read request body")
		return
	}

	if !verifySignature(body, c.GetHeader(signatureHeader), secret) {
		h.logger.Warn("webhook signature verification failed",
			zap.String("channel", string(channel)),
			zap.String("client_ip", c.ClientIP()),
		)
		SendUnauthorized(c, "invalid webhook signature")
		return
	}

	var callback entities.ProcessorCallback
	if err := json.Unmarshal(body, &callback); err != nil {
		SendBadRequest(c, ErrCodeValidationError, "malformed callback payload")
		return
	}
	if err := h.validate.Struct(&callback); err != nil {
		SendBadRequest(c, ErrCodeValidationError, err.Error())
		return
	}

	outcome := normalizeOutcome(callback.Status)
	h.metrics.PaymentEventsTotal.WithLabelValues(string(channel), string(outcome)).Inc()

	if outcome != entities.PaymentOutcomeConfirmed {
		// Failed and intermediate statuses are acknowledged and dropped; the
		// position only materializes on confirmation.
		h.logger.Info("webhook with non-confirmed status acknowledged",
			zap.String("channel", string(channel)),
			zap.String("reference", callback.Reference),
			zap.String("status", callback.Status),
		)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	event := &entities.PaymentEvent{
		Channel:          channel,
		ExternalRef:      callback.Reference,
		AmountMinorUnits: callback.AmountMinorUnits,
		Outcome:          outcome,
		OwnerID:          callback.Metadata.OwnerID,
		Category:         callback.Metadata.Category,
		Tier:             callback.Metadata.Tier,
		DurationWeeks:    callback.Metadata.DurationWeeks,
		AutoReinvest:     callback.Metadata.AutoReinvest,
	}

	position, err := h.engine.ApplyPaymentEvent(c.Request.Context(), event)
	if err != nil {
		if domainerrors.IsInvalidInput(err) {
			SendBadRequest(c, ErrCodeValidationError, err.Error())
			return
		}
		if domainerrors.IsServiceUnavailable(err) {
			// A concurrent delivery of the same reference is still settling;
			// the processor should redeliver shortly.
			SendServiceUnavailable(c, "payment event is being processed, retry shortly")
			return
		}
		h.logger.Error("failed to apply payment event",
			zap.String("reference", callback.Reference),
			zap.Error(err),
		)
		// A 5xx makes the processor redeliver; the reconciliation engine is
		// idempotent so the retry is safe.
		SendInternalError(c, ErrCodeInternalError, "failed to process payment event")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":    true,
		"position_id": position.ID,
	})
}

// verifySignature compares the hex HMAC-SHA256 of the body in constant time
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// normalizeOutcome maps processor status strings onto payment outcomes
func normalizeOutcome(status string) entities.PaymentOutcome {
	switch status {
	case "succeeded", "confirmed", "completed", "paid":
		return entities.PaymentOutcomeConfirmed
	case "failed", "expired", "cancelled":
		return entities.PaymentOutcomeFailed
	default:
		return entities.PaymentOutcomeSubmitted
	}
}
