package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/api/middleware"
	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	"github.com/vestra-platform/vestra_service/internal/domain/services/origination"
	"github.com/vestra-platform/vestra_service/internal/domain/services/withdrawal"
)

// PositionHandler serves the position lifecycle endpoints
type PositionHandler struct {
	origination *origination.Service
	withdrawals *withdrawal.Service
	logger      *zap.Logger
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(orig *origination.Service, withdrawals *withdrawal.Service, logger *zap.Logger) *PositionHandler {
	return &PositionHandler{
		origination: orig,
		withdrawals: withdrawals,
		logger:      logger,
	}
}

// Preview quotes the return model without committing anything
// POST /api/v1/positions/preview
func (h *PositionHandler) Preview(c *gin.Context) {
	var req entities.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeValidationError, err.Error())
		return
	}

	quote, err := h.origination.Preview(&req)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, quote)
}

// Create originates a position over the requested payment channel
// POST /api/v1/positions
func (h *PositionHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		SendUnauthorized(c, "authentication required")
		return
	}

	var req entities.CreatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeValidationError, err.Error())
		return
	}

	result, err := h.origination.Create(c.Request.Context(), userID, &req)
	if err != nil {
		RespondError(c, err)
		return
	}

	if result.Charge != nil {
		// The position materializes when the processor confirms the charge.
		SendAccepted(c, result)
		return
	}
	SendCreated(c, result)
}

// List returns the caller's positions, newest first
// GET /api/v1/positions
func (h *PositionHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		SendUnauthorized(c, "authentication required")
		return
	}

	limit, offset := pagination(c)
	result, err := h.origination.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, gin.H{"positions": result, "limit": limit, "offset": offset})
}

// Get returns a single position owned by the caller
// GET /api/v1/positions/:id
func (h *PositionHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		SendUnauthorized(c, "authentication required")
		return
	}
	positionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeValidationError, "invalid position id")
		return
	}

	position, err := h.origination.Get(c.Request.Context(), userID, positionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, position)
}

// Instructions returns the payment instructions for a pending manual position
// GET /api/v1/positions/:id/instructions
func (h *PositionHandler) Instructions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		SendUnauthorized(c, "authentication required")
		return
	}
	positionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeValidationError, "invalid position id")
		return
	}

	instructions, err := h.origination.Instructions(c.Request.Context(), userID, positionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, instructions)
}

// AttachProof records the caller's proof of payment on a pending position
// POST /api/v1/positions/:id/proof
func (h *PositionHandler) AttachProof(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		SendUnauthorized(c, "authentication required")
		return
	}
	positionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeValidationError, "invalid position id")
		return
	}

	var proof entities.PaymentProof
	if err := c.ShouldBindJSON(&proof); err != nil {
		SendBadRequest(c, ErrCodeValidationError, err.Error())
		return
	}

	position, err := h.origination.AttachProof(c.Request.Context(), userID, positionID, &proof)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, position)
}

// Withdraw exits an active position early
// POST /api/v1/positions/:id/withdraw
func (h *PositionHandler) Withdraw(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		SendUnauthorized(c, "authentication required")
		return
	}
	positionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeValidationError, "invalid position id")
		return
	}

	var req entities.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeValidationError, err.Error())
		return
	}

	request, err := h.withdrawals.Request(c.Request.Context(), userID, positionID, &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendCreated(c, request)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
