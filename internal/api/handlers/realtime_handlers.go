package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/vestra-platform/vestra_service/internal/api/middleware"
	"github.com/vestra-platform/vestra_service/internal/realtime"
)

// RealtimeHandler upgrades authenticated clients onto the notification channel
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Connect upgrades the request to a websocket bound to the caller's room
// GET /api/v1/ws
func (h *RealtimeHandler) Connect(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		SendUnauthorized(c, "authentication required")
		return
	}
	h.hub.ServeWS(c, userID)
}
