package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
)

const ledgerColumns = `
	id, owner_id, position_id, kind, amount, state, channel,
	external_reference, note, created_at
`

// LedgerRepository handles the append-only payment audit trail. The unique
// index on external_reference is the idempotency backstop for every channel.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create appends a ledger event. A duplicate external reference surfaces as a
// duplicate-event error.
func (r *LedgerRepository) Create(ctx context.Context, event *entities.LedgerEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("failed to validate ledger event: %w", err)
	}

	query := `
		INSERT INTO ledger_events (
			id, owner_id, position_id, kind, amount, state, channel,
			external_reference, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := ext(ctx, r.db).ExecContext(
		ctx,
		query,
		event.ID,
		event.OwnerID,
		event.PositionID,
		event.Kind,
		event.Amount,
		event.State,
		event.Channel,
		event.ExternalRef,
		event.Note,
		event.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return domainerrors.DuplicateEventError(event.ExternalRef)
		}
		return fmt.Errorf("failed to create ledger event: %w", err)
	}
	return nil
}

// GetByExternalRef retrieves the ledger event carrying the given reference
func (r *LedgerRepository) GetByExternalRef(ctx context.Context, externalRef string) (*entities.LedgerEvent, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_events WHERE external_reference = $1`

	var event entities.LedgerEvent
	err := sqlx.GetContext(ctx, ext(ctx, r.db), &event, query, externalRef)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("ledger event")
		}
		return nil, fmt.Errorf("failed to get ledger event: %w", err)
	}
	return &event, nil
}

// MarkCompleted finalizes a pending event and binds it to its position
func (r *LedgerRepository) MarkCompleted(ctx context.Context, id uuid.UUID, positionID uuid.UUID) error {
	query := `
		UPDATE ledger_events
		SET state = $2, position_id = $3
		WHERE id = $1
	`
	result, err := ext(ctx, r.db).ExecContext(ctx, query, id, entities.LedgerStateCompleted, positionID)
	if err != nil {
		return fmt.Errorf("failed to complete ledger event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domainerrors.NotFoundError("ledger event")
	}
	return nil
}

// ListByOwner retrieves a user's ledger events, newest first
func (r *LedgerRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.LedgerEvent, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_events
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var result []*entities.LedgerEvent
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &result, query, ownerID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list ledger events: %w", err)
	}
	return result, nil
}
