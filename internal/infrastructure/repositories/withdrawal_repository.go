package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
)

const withdrawalColumns = `
	id, owner_id, position_id, principal, profit, method, destination,
	state, created_at, updated_at
`

// WithdrawalRepository handles withdrawal request persistence
type WithdrawalRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create inserts a new withdrawal request
func (r *WithdrawalRepository) Create(ctx context.Context, request *entities.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawal_requests (
			id, owner_id, position_id, principal, profit, method, destination,
			state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	now := time.Now()
	request.CreatedAt = now
	request.UpdatedAt = now

	_, err := ext(ctx, r.db).ExecContext(
		ctx,
		query,
		request.ID,
		request.OwnerID,
		request.PositionID,
		request.Principal,
		request.Profit,
		request.Method,
		request.Destination,
		request.State,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return nil
}

// GetByID retrieves a withdrawal request by id
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`

	var request entities.WithdrawalRequest
	err := sqlx.GetContext(ctx, ext(ctx, r.db), &request, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("withdrawal request")
		}
		return nil, fmt.Errorf("failed to get withdrawal request: %w", err)
	}
	return &request, nil
}

// ListByOwner retrieves a user's withdrawal requests, newest first
func (r *WithdrawalRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var result []*entities.WithdrawalRequest
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &result, query, ownerID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}
	return result, nil
}

// UpdateState moves a withdrawal request to a new processing state
func (r *WithdrawalRepository) UpdateState(ctx context.Context, id uuid.UUID, state entities.WithdrawalState) error {
	query := `
		UPDATE withdrawal_requests
		SET state = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := ext(ctx, r.db).ExecContext(ctx, query, id, state)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domainerrors.NotFoundError("withdrawal request")
	}
	return nil
}
