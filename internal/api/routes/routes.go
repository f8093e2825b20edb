// Package routes assembles the HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/api/handlers"
	"github.com/vestra-platform/vestra_service/internal/api/middleware"
	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	"github.com/vestra-platform/vestra_service/internal/infrastructure/cache"
	"github.com/vestra-platform/vestra_service/internal/infrastructure/config"
	"github.com/vestra-platform/vestra_service/pkg/auth"
	"github.com/vestra-platform/vestra_service/pkg/metrics"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Positions *handlers.PositionHandler
	Webhooks  *handlers.WebhookHandler
	Admin     *handlers.AdminHandler
	Account   *handlers.AccountHandler
	Health    *handlers.HealthHandler
	Realtime  *handlers.RealtimeHandler
}

// Setup builds the gin engine with the full middleware chain and route table
func Setup(
	cfg *config.Config,
	h *Handlers,
	authManager *auth.Manager,
	store *cache.Cache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Recovery(logger),
		m.Middleware(),
	)

	router.GET("/health/live", h.Health.Live)
	router.GET("/health/ready", h.Health.Ready)
	router.GET("/metrics", m.Handler())

	v1 := router.Group("/api/v1")

	// Processor callbacks authenticate by signature, not bearer token.
	webhooks := v1.Group("/webhooks")
	webhooks.Use(middleware.BurstLimit(20, 40))
	{
		webhooks.POST("/card", h.Webhooks.HandleCard)
		webhooks.POST("/wallet", h.Webhooks.HandleWallet)
	}

	authed := v1.Group("")
	authed.Use(
		middleware.Auth(authManager),
		middleware.RateLimit(store, cfg.Server.RateLimitPerMin, logger),
	)
	{
		positions := authed.Group("/positions")
		{
			positions.POST("", h.Positions.Create)
			positions.POST("/preview", h.Positions.Preview)
			positions.GET("", h.Positions.List)
			positions.GET("/:id", h.Positions.Get)
			positions.GET("/:id/instructions", h.Positions.Instructions)
			positions.POST("/:id/proof", h.Positions.AttachProof)
			positions.POST("/:id/withdraw", h.Positions.Withdraw)
		}

		account := authed.Group("/account")
		{
			account.GET("/summary", h.Account.Summary)
			account.GET("/ledger", h.Account.Ledger)
		}

		authed.GET("/ws", h.Realtime.Connect)

		admin := authed.Group("/admin")
		admin.Use(middleware.RequireRole(entities.RoleAdmin))
		{
			admin.GET("/positions/pending", h.Admin.ListPending)
			admin.POST("/positions/:id/instructions", h.Admin.SendInstructions)
			admin.POST("/positions/:id/approve", h.Admin.Approve)
			admin.POST("/positions/:id/reject", h.Admin.Reject)
		}
	}

	return router
}
