package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
)

// UserRepository handles user persistence and running totals
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by id
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	query := `
		SELECT id, email, role, total_invested, total_payout, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user entities.User
	err := sqlx.GetContext(ctx, ext(ctx, r.db), &user, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// IncrementTotals adds to a user's running invested and payout totals. The
// row is created on first touch so reconciliation never depends on a prior
// signup write.
func (r *UserRepository) IncrementTotals(ctx context.Context, ownerID uuid.UUID, invested, payout decimal.Decimal) error {
	query := `
		INSERT INTO users (id, email, role, total_invested, total_payout, is_active, created_at, updated_at)
		VALUES ($1, '', 'user', $2, $3, TRUE, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET total_invested = users.total_invested + EXCLUDED.total_invested,
		    total_payout   = users.total_payout + EXCLUDED.total_payout,
		    updated_at     = NOW()
	`
	if _, err := ext(ctx, r.db).ExecContext(ctx, query, ownerID, invested, payout); err != nil {
		return fmt.Errorf("failed to increment user totals: %w", err)
	}
	return nil
}

// GetSummary aggregates the user's totals with live position counts and value
func (r *UserRepository) GetSummary(ctx context.Context, ownerID uuid.UUID) (*entities.AccountSummary, error) {
	query := `
		SELECT
			COALESCE(u.total_invested, 0) AS total_invested,
			COALESCE(u.total_payout, 0) AS total_payout,
			COUNT(p.id) FILTER (WHERE p.status = 'active') AS active_positions,
			COUNT(p.id) FILTER (WHERE p.status = 'pending') AS pending_positions,
			COALESCE(SUM(p.current_value) FILTER (WHERE p.status = 'active'), 0) AS current_value
		FROM users u
		LEFT JOIN positions p ON p.owner_id = u.id
		WHERE u.id = $1
		GROUP BY u.total_invested, u.total_payout
	`

	var row struct {
		TotalInvested    decimal.Decimal `db:"total_invested"`
		TotalPayout      decimal.Decimal `db:"total_payout"`
		ActivePositions  int             `db:"active_positions"`
		PendingPositions int             `db:"pending_positions"`
		CurrentValue     decimal.Decimal `db:"current_value"`
	}
	err := sqlx.GetContext(ctx, ext(ctx, r.db), &row, query, ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			// No account row yet; an empty summary is still a valid answer.
			return &entities.AccountSummary{
				UserID:        ownerID,
				TotalInvested: decimal.Zero,
				TotalPayout:   decimal.Zero,
				CurrentValue:  decimal.Zero,
			}, nil
		}
		return nil, fmt.Errorf("failed to get account summary: %w", err)
	}

	return &entities.AccountSummary{
		UserID:           ownerID,
		TotalInvested:    row.TotalInvested,
		TotalPayout:      row.TotalPayout,
		ActivePositions:  row.ActivePositions,
		PendingPositions: row.PendingPositions,
		CurrentValue:     row.CurrentValue,
	}, nil
}
