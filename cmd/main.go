package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/adapters/card"
	"github.com/vestra-platform/vestra_service/internal/adapters/cryptopay"
	"github.com/vestra-platform/vestra_service/internal/adapters/payments"
	"github.com/vestra-platform/vestra_service/internal/adapters/wallet"
	"github.com/vestra-platform/vestra_service/internal/adapters/wire"
	"github.com/vestra-platform/vestra_service/internal/api/handlers"
	"github.com/vestra-platform/vestra_service/internal/api/routes"
	"github.com/vestra-platform/vestra_service/internal/domain/services/origination"
	"github.com/vestra-platform/vestra_service/internal/domain/services/positions"
	"github.com/vestra-platform/vestra_service/internal/domain/services/reconcile"
	"github.com/vestra-platform/vestra_service/internal/domain/services/withdrawal"
	"github.com/vestra-platform/vestra_service/internal/infrastructure/cache"
	"github.com/vestra-platform/vestra_service/internal/infrastructure/config"
	"github.com/vestra-platform/vestra_service/internal/infrastructure/database"
	"github.com/vestra-platform/vestra_service/internal/infrastructure/repositories"
	"github.com/vestra-platform/vestra_service/internal/realtime"
	"github.com/vestra-platform/vestra_service/internal/workers/valuation"
	"github.com/vestra-platform/vestra_service/pkg/auth"
	"github.com/vestra-platform/vestra_service/pkg/logger"
	"github.com/vestra-platform/vestra_service/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zlog := log.Zap()

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	store, err := cache.NewCache(cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer store.Close()

	m := metrics.New()

	// Repositories
	positionRepo := repositories.NewPositionRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)
	withdrawalRepo := repositories.NewWithdrawalRepository(db)
	userRepo := repositories.NewUserRepository(db)
	txRunner := repositories.NewTxRunner(db)

	// Realtime hub
	hub := realtime.NewHub(zlog, func(delta int) {
		m.WSClientsConnected.Add(float64(delta))
	})
	defer hub.Close()

	// Payment adapters
	cardAdapter := card.NewAdapter(card.Config{
		APIKey:  cfg.Payment.Card.APIKey,
		BaseURL: cfg.Payment.Card.BaseURL,
		Timeout: time.Duration(cfg.Payment.Card.TimeoutSecs) * time.Second,
	}, zlog)
	walletAdapter := wallet.NewAdapter(wallet.Config{
		APIKey:    cfg.Payment.Wallet.APIKey,
		APISecret: cfg.Payment.Wallet.APISecret,
		BaseURL:   cfg.Payment.Wallet.BaseURL,
		Timeout:   time.Duration(cfg.Payment.Wallet.TimeoutSecs) * time.Second,
	}, zlog)
	cryptoAdapter := cryptopay.NewAdapter(cryptopay.Config{
		DepositAddress: cfg.Payment.Crypto.DepositAddress,
		Network:        cfg.Payment.Crypto.Network,
	}, zlog)
	wireAdapter := wire.NewAdapter(wire.Config{
		BankName:      cfg.Payment.Wire.BankName,
		AccountName:   cfg.Payment.Wire.AccountName,
		AccountNumber: cfg.Payment.Wire.AccountNumber,
		RoutingNumber: cfg.Payment.Wire.RoutingNumber,
	}, zlog)

	// Domain services
	ledger := positions.NewService(positionRepo, positions.NewSeededNoise(), zlog)
	engine := reconcile.NewEngine(positionRepo, ledger, ledgerRepo, userRepo, txRunner, hub, zlog)
	engine.SetDedupCache(store)
	originationSvc := origination.NewService(
		positionRepo, ledger,
		[]payments.InstantAdapter{cardAdapter, walletAdapter},
		[]payments.ManualAdapter{cryptoAdapter, wireAdapter},
		hub, zlog,
	)
	withdrawalSvc := withdrawal.NewService(
		withdrawalRepo, ledger, ledgerRepo, userRepo, txRunner,
		cfg.Positions.HoldingWindow(), zlog,
	)

	// Valuation scheduler
	scheduler := valuation.NewScheduler(
		valuation.Config{
			Schedule:   cfg.Valuation.Schedule,
			PendingTTL: cfg.Valuation.PendingTTL(),
		},
		ledger, positionRepo, engine, userRepo, hub, sweepObserver{m}, zlog,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := scheduler.Start(ctx); err != nil {
		zlog.Fatal("failed to start valuation scheduler", zap.Error(err))
	}

	// HTTP surface
	authManager := auth.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.AccessTTL)*time.Second)
	router := routes.Setup(cfg, &routes.Handlers{
		Positions: handlers.NewPositionHandler(originationSvc, withdrawalSvc, zlog),
		Webhooks:  handlers.NewWebhookHandler(engine, cfg.Payment.Card.WebhookSecret, cfg.Payment.Wallet.WebhookSecret, m, zlog),
		Admin:     handlers.NewAdminHandler(engine, ledger, positionRepo, hub, zlog),
		Account:   handlers.NewAccountHandler(userRepo, ledgerRepo, zlog),
		Health:    handlers.NewHealthHandler(db),
		Realtime:  handlers.NewRealtimeHandler(hub),
	}, authManager, store, m, zlog)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down")

	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("forced shutdown", zap.Error(err))
	}
	zlog.Info("server stopped")
}

// sweepObserver bridges scheduler counters onto prometheus
type sweepObserver struct {
	m *metrics.Metrics
}

func (o sweepObserver) SweepCompleted(advanced, matured int) {
	o.m.ValuationRunsTotal.Inc()
	o.m.ValuationPositionsAdvanced.Add(float64(advanced))
	o.m.PositionsMaturedTotal.Add(float64(matured))
}
