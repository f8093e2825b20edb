package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
	"github.com/vestra-platform/vestra_service/internal/domain/services/positions"
	"github.com/vestra-platform/vestra_service/internal/domain/services/reconcile"
	"github.com/vestra-platform/vestra_service/pkg/metrics"
)

const testSecret = "whsec_test"

type mockPositionRepo struct {
	mock.Mock
}

func (m *mockPositionRepo) Create(ctx context.Context, position *entities.Position) error {
	args := m.Called(ctx, position)
	return args.Error(0)
}

func (m *mockPositionRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Position, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Position), args.Error(1)
}

func (m *mockPositionRepo) GetByExternalRef(ctx context.Context, externalRef string) (*entities.Position, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Position), args.Error(1)
}

func (m *mockPositionRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.Position, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Position), args.Error(1)
}

func (m *mockPositionRepo) ListByStatus(ctx context.Context, status entities.PositionStatus) ([]*entities.Position, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Position), args.Error(1)
}

func (m *mockPositionRepo) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*entities.Position, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Position), args.Error(1)
}

func (m *mockPositionRepo) UpdateValue(ctx context.Context, id uuid.UUID, version int64, value decimal.Decimal, valuedAt time.Time) error {
	args := m.Called(ctx, id, version, value, valuedAt)
	return args.Error(0)
}

func (m *mockPositionRepo) Activate(ctx context.Context, id uuid.UUID, version int64, startedAt, maturesAt time.Time, externalRef string) error {
	args := m.Called(ctx, id, version, startedAt, maturesAt, externalRef)
	return args.Error(0)
}

func (m *mockPositionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, version int64, status entities.PositionStatus, paymentState entities.PaymentState, reason *string) error {
	args := m.Called(ctx, id, version, status, paymentState, reason)
	return args.Error(0)
}

func (m *mockPositionRepo) SetExternalRef(ctx context.Context, id uuid.UUID, version int64, externalRef string) error {
	args := m.Called(ctx, id, version, externalRef)
	return args.Error(0)
}

type mockLedgerRepo struct {
	mock.Mock
}

func (m *mockLedgerRepo) Create(ctx context.Context, event *entities.LedgerEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockLedgerRepo) GetByExternalRef(ctx context.Context, externalRef string) (*entities.LedgerEvent, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.LedgerEvent), args.Error(1)
}

func (m *mockLedgerRepo) MarkCompleted(ctx context.Context, id uuid.UUID, positionID uuid.UUID) error {
	args := m.Called(ctx, id, positionID)
	return args.Error(0)
}

func (m *mockLedgerRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.LedgerEvent, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LedgerEvent), args.Error(1)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) IncrementTotals(ctx context.Context, ownerID uuid.UUID, invested, payout decimal.Decimal) error {
	args := m.Called(ctx, ownerID, invested, payout)
	return args.Error(0)
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestRouter(positionRepo *mockPositionRepo, ledgerRepo *mockLedgerRepo, userRepo *mockUserRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)

	ledger := positions.NewService(positionRepo, positions.NoNoise{}, zap.NewNop())
	engine := reconcile.NewEngine(positionRepo, ledger, ledgerRepo, userRepo, passthroughTx{}, nil, zap.NewNop())
	handler := NewWebhookHandler(engine, testSecret, testSecret, metrics.New(), zap.NewNop())

	router := gin.New()
	router.POST("/webhooks/card", handler.HandleCard)
	router.POST("/webhooks/wallet", handler.HandleWallet)
	return router
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func callbackBody(t *testing.T, reference, status string) []byte {
	t.Helper()
	body, err := json.Marshal(entities.ProcessorCallback{
		Reference:        reference,
		AmountMinorUnits: 50000,
		Status:           status,
		Currency:         "USD",
		Metadata: entities.ProcessorCallbackMetadata{
			OwnerID:       uuid.New(),
			Category:      entities.CategoryForex,
			Tier:          entities.TierSilver,
			DurationWeeks: 4,
		},
	})
	require.NoError(t, err)
	return body
}

func post(router *gin.Engine, path string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	router := newTestRouter(new(mockPositionRepo), new(mockLedgerRepo), new(mockUserRepo))
	body := callbackBody(t, "card_abc", "succeeded")

	w := post(router, "/webhooks/card", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	router := newTestRouter(new(mockPositionRepo), new(mockLedgerRepo), new(mockUserRepo))
	body := callbackBody(t, "card_abc", "succeeded")
	signature := sign(body)

	tampered := bytes.Replace(body, []byte("50000"), []byte("99000"), 1)
	w := post(router, "/webhooks/card", tampered, signature)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookAppliesConfirmedPayment(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	ledgerRepo := new(mockLedgerRepo)
	userRepo := new(mockUserRepo)
	router := newTestRouter(positionRepo, ledgerRepo, userRepo)

	ledgerRepo.On("GetByExternalRef", mock.Anything, "card_abc").
		Return(nil, domainerrors.NotFoundError("ledger event")).Once()
	ledgerRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	positionRepo.On("GetByExternalRef", mock.Anything, "card_abc").
		Return(nil, domainerrors.NotFoundError("position")).Once()
	positionRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	ledgerRepo.On("MarkCompleted", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	userRepo.On("IncrementTotals", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	body := callbackBody(t, "card_abc", "succeeded")
	w := post(router, "/webhooks/card", body, sign(body))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["received"])
	assert.NotEmpty(t, resp["position_id"])
	positionRepo.AssertExpectations(t)
}

func TestWebhookReplayAcknowledgedWithoutSideEffects(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	ledgerRepo := new(mockLedgerRepo)
	userRepo := new(mockUserRepo)
	router := newTestRouter(positionRepo, ledgerRepo, userRepo)

	positionID := uuid.New()
	ledgerRepo.On("GetByExternalRef", mock.Anything, "wallet_dup").Return(&entities.LedgerEvent{
		ID:          uuid.New(),
		PositionID:  &positionID,
		State:       entities.LedgerStateCompleted,
		ExternalRef: "wallet_dup",
	}, nil).Once()
	positionRepo.On("GetByID", mock.Anything, positionID).
		Return(&entities.Position{ID: positionID, Status: entities.PositionStatusActive}, nil).Once()

	body := callbackBody(t, "wallet_dup", "succeeded")
	w := post(router, "/webhooks/wallet", body, sign(body))

	assert.Equal(t, http.StatusOK, w.Code, "replays are acknowledged, not rejected")
	positionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	userRepo.AssertNotCalled(t, "IncrementTotals", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookSettlingDuplicateGetsRetryLater(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	ledgerRepo := new(mockLedgerRepo)
	userRepo := new(mockUserRepo)
	router := newTestRouter(positionRepo, ledgerRepo, userRepo)

	ledgerRepo.On("GetByExternalRef", mock.Anything, "card_race").
		Return(nil, domainerrors.NotFoundError("ledger event")).Once()
	ledgerRepo.On("Create", mock.Anything, mock.Anything).
		Return(domainerrors.DuplicateEventError("card_race")).Once()
	// The winning delivery is still settling the same reference.
	ledgerRepo.On("GetByExternalRef", mock.Anything, "card_race").Return(&entities.LedgerEvent{
		ID:          uuid.New(),
		State:       entities.LedgerStatePending,
		ExternalRef: "card_race",
	}, nil)

	body := callbackBody(t, "card_race", "succeeded")
	w := post(router, "/webhooks/card", body, sign(body))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "processor should redeliver, not alert")
	positionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	userRepo.AssertNotCalled(t, "IncrementTotals", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookAcknowledgesFailedStatus(t *testing.T) {
	positionRepo := new(mockPositionRepo)
	ledgerRepo := new(mockLedgerRepo)
	router := newTestRouter(positionRepo, ledgerRepo, new(mockUserRepo))

	body := callbackBody(t, "card_failed", "failed")
	w := post(router, "/webhooks/card", body, sign(body))

	assert.Equal(t, http.StatusOK, w.Code)
	ledgerRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	positionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	router := newTestRouter(new(mockPositionRepo), new(mockLedgerRepo), new(mockUserRepo))

	body := []byte(`{"reference": ""}`)
	w := post(router, "/webhooks/card", body, sign(body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
