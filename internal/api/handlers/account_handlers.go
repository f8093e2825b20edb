package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/api/middleware"
	"github.com/vestra-platform/vestra_service/internal/domain/services/reconcile"
	"github.com/vestra-platform/vestra_service/internal/infrastructure/repositories"
)

// AccountHandler serves the pull/refresh account views
type AccountHandler struct {
	userRepo   *repositories.UserRepository
	ledgerRepo reconcile.LedgerRepository
	logger     *zap.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(userRepo *repositories.UserRepository, ledgerRepo reconcile.LedgerRepository, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		userRepo:   userRepo,
		ledgerRepo: ledgerRepo,
		logger:     logger,
	}
}

// Summary returns the caller's totals and live position counts
// GET /api/v1/account/summary
func (h *AccountHandler) Summary(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		SendUnauthorized(c, "authentication required")
		return
	}

	summary, err := h.userRepo.GetSummary(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, summary)
}

// Ledger returns the caller's payment audit trail, newest first
// GET /api/v1/account/ledger
func (h *AccountHandler) Ledger(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		SendUnauthorized(c, "authentication required")
		return
	}

	limit, offset := pagination(c)
	events, err := h.ledgerRepo.ListByOwner(c.Request.Context(), userID, limit, offset)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, gin.H{"events": events, "limit": limit, "offset": offset})
}
