package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
)

const positionColumns = `
	id, owner_id, category, tier, principal, duration_weeks, annual_rate_pct,
	expected_payout, current_value, per_period_accrual, status, started_at,
	matures_at, last_valued_at, payment_channel, payment_state, external_reference,
	rejection_reason, auto_reinvest, version, created_at, updated_at
`

// PositionRepository handles position persistence. Every update is guarded by
// the record version so concurrent writers cannot overwrite each other.
type PositionRepository struct {
	db *sqlx.DB
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position. A second insert carrying the same external
// reference trips the unique index and surfaces as a duplicate event.
func (r *PositionRepository) Create(ctx context.Context, position *entities.Position) error {
	query := `
		INSERT INTO positions (
			id, owner_id, category, tier, principal, duration_weeks, annual_rate_pct,
			expected_payout, current_value, per_period_accrual, status, started_at,
			matures_at, payment_channel, payment_state, external_reference,
			auto_reinvest, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 0, $18, $19)
	`

	now := time.Now()
	position.CreatedAt = now
	position.UpdatedAt = now

	_, err := ext(ctx, r.db).ExecContext(
		ctx,
		query,
		position.ID,
		position.OwnerID,
		position.Category,
		position.Tier,
		position.Principal,
		position.DurationWeeks,
		position.AnnualRatePct,
		position.ExpectedPayout,
		position.CurrentValue,
		position.PerPeriodAccrual,
		position.Status,
		position.StartedAt,
		position.MaturesAt,
		position.PaymentChannel,
		position.PaymentState,
		position.ExternalRef,
		position.AutoReinvest,
		position.CreatedAt,
		position.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			ref := ""
			if position.ExternalRef != nil {
				ref = *position.ExternalRef
			}
			return domainerrors.DuplicateEventError(ref)
		}
		return fmt.Errorf("failed to create position: %w", err)
	}
	return nil
}

// GetByID retrieves a position by id
func (r *PositionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	var position entities.Position
	err := sqlx.GetContext(ctx, ext(ctx, r.db), &position, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("position")
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return &position, nil
}

// GetByExternalRef retrieves the position created for a payment reference
func (r *PositionRepository) GetByExternalRef(ctx context.Context, externalRef string) (*entities.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE external_reference = $1`

	var position entities.Position
	err := sqlx.GetContext(ctx, ext(ctx, r.db), &position, query, externalRef)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("position")
		}
		return nil, fmt.Errorf("failed to get position by external reference: %w", err)
	}
	return &position, nil
}

// GetByOwner retrieves a user's positions, newest first
func (r *PositionRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var result []*entities.Position
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &result, query, ownerID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list positions by owner: %w", err)
	}
	return result, nil
}

// ListByStatus retrieves every position in the given status
func (r *PositionRepository) ListByStatus(ctx context.Context, status entities.PositionStatus) ([]*entities.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE status = $1 ORDER BY created_at`

	var result []*entities.Position
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &result, query, status); err != nil {
		return nil, fmt.Errorf("failed to list positions by status: %w", err)
	}
	return result, nil
}

// ListPendingCreatedBefore retrieves pending positions older than the cutoff
func (r *PositionRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*entities.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
	`

	var result []*entities.Position
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &result, query, entities.PositionStatusPending, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stale pending positions: %w", err)
	}
	return result, nil
}

// UpdateValue persists a recomputed current value if the version still matches
func (r *PositionRepository) UpdateValue(ctx context.Context, id uuid.UUID, version int64, value decimal.Decimal, valuedAt time.Time) error {
	query := `
		UPDATE positions
		SET current_value = $3, last_valued_at = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`
	return r.casExec(ctx, query, id, version, value, valuedAt)
}

// UpdateStatus moves a position to the next status if the version still matches
func (r *PositionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, version int64, status entities.PositionStatus, paymentState entities.PaymentState, reason *string) error {
	query := `
		UPDATE positions
		SET status = $3, payment_state = $4, rejection_reason = $5, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`
	return r.casExec(ctx, query, id, version, status, paymentState, reason)
}

// Activate flips a pending position to active if the version still matches
func (r *PositionRepository) Activate(ctx context.Context, id uuid.UUID, version int64, startedAt, maturesAt time.Time, externalRef string) error {
	query := `
		UPDATE positions
		SET status = $3, payment_state = $4, started_at = $5, matures_at = $6,
		    external_reference = $7, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`
	return r.casExec(ctx, query, id, version,
		entities.PositionStatusActive, entities.PaymentStateConfirmed, startedAt, maturesAt, externalRef)
}

// SetExternalRef records a proof reference if the version still matches
func (r *PositionRepository) SetExternalRef(ctx context.Context, id uuid.UUID, version int64, externalRef string) error {
	query := `
		UPDATE positions
		SET external_reference = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`
	return r.casExec(ctx, query, id, version, externalRef)
}

// casExec runs a version-guarded update. Zero rows means the version was
// stale or the row is gone; both surface as a conflict so the caller re-reads.
func (r *PositionRepository) casExec(ctx context.Context, query string, args ...interface{}) error {
	result, err := ext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domainerrors.ConflictError("position")
	}
	return nil
}
