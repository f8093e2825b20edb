// Package valuation runs the periodic revaluation sweep. One run recomputes
// the value of every active position, settles positions past maturity, and
// expires pending positions whose payment never arrived. Runs never overlap;
// if a sweep is still going when the next tick fires, the tick is skipped.
package valuation

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	"github.com/vestra-platform/vestra_service/internal/domain/services/positions"
	"github.com/vestra-platform/vestra_service/internal/domain/services/reconcile"
)

// Observer receives sweep counters for gauge and counter reporting
type Observer interface {
	SweepCompleted(advanced, matured int)
}

// Config controls the scheduler
type Config struct {
	Schedule   string
	PendingTTL time.Duration
}

// Scheduler is the valuation scheduler
type Scheduler struct {
	cfg      Config
	ledger   *positions.Service
	repo     positions.Repository
	engine   *reconcile.Engine
	userRepo reconcile.UserRepository
	notifier reconcile.Notifier
	observer Observer
	logger   *zap.Logger

	cron   *cron.Cron
	stopCh chan struct{}
}

// NewScheduler creates a new valuation scheduler
func NewScheduler(
	cfg Config,
	ledger *positions.Service,
	repo positions.Repository,
	engine *reconcile.Engine,
	userRepo reconcile.UserRepository,
	notifier reconcile.Notifier,
	observer Observer,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		ledger:   ledger,
		repo:     repo,
		engine:   engine,
		userRepo: userRepo,
		notifier: notifier,
		observer: observer,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start registers the sweep with the cron runner and begins ticking
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("valuation scheduler started", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop halts the cron runner and waits for an in-flight sweep to finish
func (s *Scheduler) Stop() {
	close(s.stopCh)
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.logger.Info("valuation scheduler stopped")
}

// Sweep runs one full revaluation pass. Failures on one position are logged
// and never abort the rest of the batch.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := time.Now()
	active, err := s.repo.ListByStatus(ctx, entities.PositionStatusActive)
	if err != nil {
		s.logger.Error("failed to list active positions", zap.Error(err))
		return
	}

	advanced, matured := 0, 0
	for _, position := range active {
		if _, err := s.ledger.AdvanceValue(ctx, position, now); err != nil {
			s.logger.Error("failed to advance position value",
				zap.String("position_id", position.ID.String()),
				zap.Error(err))
			continue
		}
		advanced++

		done, err := s.ledger.MarkMatured(ctx, position, now)
		if err != nil {
			s.logger.Error("failed to settle matured position",
				zap.String("position_id", position.ID.String()),
				zap.Error(err))
			continue
		}
		if done {
			matured++
			s.settlePayout(ctx, position)
		}
	}

	expired := s.expirePending(ctx, now)

	if s.observer != nil {
		s.observer.SweepCompleted(advanced, matured)
	}
	s.logger.Info("valuation sweep completed",
		zap.Int("active", len(active)),
		zap.Int("advanced", advanced),
		zap.Int("matured", matured),
		zap.Int("expired", expired),
		zap.Duration("took", time.Since(now)),
	)
}

// settlePayout credits the owner's totals at maturity and, when the position
// opted in, rolls the final value into a fresh position.
func (s *Scheduler) settlePayout(ctx context.Context, position *entities.Position) {
	if err := s.userRepo.IncrementTotals(ctx, position.OwnerID, decimal.Zero, position.CurrentValue); err != nil {
		s.logger.Error("failed to credit payout totals",
			zap.String("position_id", position.ID.String()),
			zap.Error(err))
	}

	if s.notifier != nil {
		s.notifier.Push(ctx, position.OwnerID, &entities.RealtimeMessage{
			Kind:       entities.MessageKindPositionStatusChanged,
			PositionID: position.ID,
			Channel:    position.PaymentChannel,
			Status:     position.Status,
			Message:    "Your investment has matured",
			Timestamp:  time.Now().UTC(),
		})
	}

	if !position.AutoReinvest {
		return
	}

	// The reference is derived from the matured position, so replaying a
	// sweep cannot reinvest the same payout twice.
	event := &entities.PaymentEvent{
		Channel:          position.PaymentChannel,
		ExternalRef:      "reinvest_" + position.ID.String(),
		AmountMinorUnits: position.CurrentValue.Mul(decimal.NewFromInt(100)).IntPart(),
		Outcome:          entities.PaymentOutcomeConfirmed,
		OwnerID:          position.OwnerID,
		Category:         position.Category,
		Tier:             position.Tier,
		DurationWeeks:    position.DurationWeeks,
		AutoReinvest:     position.AutoReinvest,
	}
	next, err := s.engine.ApplyPaymentEvent(ctx, event)
	if err != nil {
		s.logger.Error("failed to reinvest matured position",
			zap.String("position_id", position.ID.String()),
			zap.Error(err))
		return
	}
	s.logger.Info("position reinvested",
		zap.String("matured_position_id", position.ID.String()),
		zap.String("new_position_id", next.ID.String()),
		zap.String("principal", next.Principal.String()),
	)
}

// expirePending rejects pending positions whose payment window has lapsed
func (s *Scheduler) expirePending(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-s.cfg.PendingTTL)
	stale, err := s.repo.ListPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to list stale pending positions", zap.Error(err))
		return 0
	}

	reason := "payment window expired"
	expired := 0
	for _, position := range stale {
		if _, err := s.engine.Reject(ctx, position.ID, &reason); err != nil {
			s.logger.Error("failed to expire pending position",
				zap.String("position_id", position.ID.String()),
				zap.Error(err))
			continue
		}
		expired++
	}
	return expired
}
