package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	"github.com/vestra-platform/vestra_service/internal/domain/services/positions"
	"github.com/vestra-platform/vestra_service/internal/domain/services/reconcile"
)

// AdminHandler serves the manual verification workflow
type AdminHandler struct {
	engine   *reconcile.Engine
	ledger   *positions.Service
	repo     positions.Repository
	notifier reconcile.Notifier
	logger   *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(engine *reconcile.Engine, ledger *positions.Service, repo positions.Repository, notifier reconcile.Notifier, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		engine:   engine,
		ledger:   ledger,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// ListPending returns every position awaiting manual verification
// GET /api/v1/admin/positions/pending
func (h *AdminHandler) ListPending(c *gin.Context) {
	result, err := h.repo.ListByStatus(c.Request.Context(), entities.PositionStatusPending)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, gin.H{"positions": result})
}

// SendInstructions pushes hand-composed payment instructions to the owner
// POST /api/v1/admin/positions/:id/instructions
func (h *AdminHandler) SendInstructions(c *gin.Context) {
	positionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeValidationError, "invalid position id")
		return
	}

	var instructions entities.PaymentInstructions
	if err := c.ShouldBindJSON(&instructions); err != nil {
		SendBadRequest(c, ErrCodeValidationError, err.Error())
		return
	}

	position, err := h.ledger.Get(c.Request.Context(), positionID)
	if err != nil {
		RespondError(c, err)
		return
	}

	instructions.PositionID = position.ID
	instructions.Channel = position.PaymentChannel
	if err := instructions.Validate(); err != nil {
		SendBadRequest(c, ErrCodeValidationError, err.Error())
		return
	}

	h.notifier.Push(c.Request.Context(), position.OwnerID, &entities.RealtimeMessage{
		Kind:         entities.MessageKindInstructionsReady,
		PositionID:   position.ID,
		Channel:      position.PaymentChannel,
		Status:       position.Status,
		Message:      "Payment instructions are ready",
		Instructions: &instructions,
		Timestamp:    time.Now().UTC(),
	})

	h.logger.Info("payment instructions sent",
		zap.String("position_id", position.ID.String()),
		zap.String("owner_id", position.OwnerID.String()),
	)
	SendSuccess(c, gin.H{"sent": true})
}

// Approve confirms a manual payment against its pending position
// POST /api/v1/admin/positions/:id/approve
func (h *AdminHandler) Approve(c *gin.Context) {
	positionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeValidationError, "invalid position id")
		return
	}

	position, err := h.engine.Approve(c.Request.Context(), positionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, position)
}

// rejectRequest carries the optional rejection reason
type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject denies a pending position
// POST /api/v1/admin/positions/:id/reject
func (h *AdminHandler) Reject(c *gin.Context) {
	positionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeValidationError, "invalid position id")
		return
	}

	var req rejectRequest
	// A body is optional for rejections.
	_ = c.ShouldBindJSON(&req)

	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}

	position, err := h.engine.Reject(c.Request.Context(), positionID, reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, position)
}
