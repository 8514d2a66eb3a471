package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// HoldingRepository handles holding persistence in Postgres.
type HoldingRepository struct {
	db *PostgresDB
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *PostgresDB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

const holdingColumns = `
	holding_id, user_id, ticker, account_name, quantity, cost_basis,
	currency, source, external_id, review, review_candidate, updated_at
`

// GetByNaturalKey retrieves the holding for (user, ticker), or nil if none exists.
func (r *HoldingRepository) GetByNaturalKey(ctx context.Context, userID, ticker string) (*models.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE user_id = $1 AND ticker = $2`

	row := r.db.Pool().QueryRow(ctx, query, userID, ticker)
	holding, err := scanHolding(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	return holding, nil
}

// UpsertAggregator inserts or updates an aggregator-sourced holding keyed on
// (user, external id). The upsert is idempotent: replaying the same snapshot
// produces the same row.
func (r *HoldingRepository) UpsertAggregator(ctx context.Context, h *models.Holding) error {
	if h.ExternalID == nil {
		return fmt.Errorf("aggregator holding requires an external id")
	}
	if h.HoldingID == "" {
		h.HoldingID = uuid.NewString()
	}

	query := `
		INSERT INTO holdings (
			holding_id, user_id, ticker, account_name, quantity, cost_basis,
			currency, source, external_id, review, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (user_id, external_id) WHERE external_id IS NOT NULL
		DO UPDATE SET
			ticker = EXCLUDED.ticker,
			account_name = EXCLUDED.account_name,
			quantity = EXCLUDED.quantity,
			cost_basis = EXCLUDED.cost_basis,
			currency = EXCLUDED.currency,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		h.HoldingID,
		h.UserID,
		h.Ticker,
		h.AccountName,
		h.Quantity,
		h.CostBasis,
		h.Currency,
		string(types.SourceAggregator),
		h.ExternalID,
		string(types.ReviewNone),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}

	return nil
}

// FlagForReview marks a manual holding as needing review and attaches the
// conflicting aggregator snapshot. Financial fields are never modified here.
func (r *HoldingRepository) FlagForReview(ctx context.Context, holdingID string, candidate *models.HoldingCandidate) error {
	candidateJSON, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("failed to marshal review candidate: %w", err)
	}

	query := `
		UPDATE holdings
		SET review = $2, review_candidate = $3, updated_at = NOW()
		WHERE holding_id = $1 AND source = $4
	`

	result, err := r.db.Pool().Exec(ctx, query,
		holdingID,
		string(types.ReviewNeeded),
		candidateJSON,
		string(types.SourceManual),
	)
	if err != nil {
		return fmt.Errorf("failed to flag holding for review: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("manual holding not found: %s", holdingID)
	}

	return nil
}

// ListByUser retrieves all holdings for a user.
func (r *HoldingRepository) ListByUser(ctx context.Context, userID string) ([]*models.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE user_id = $1 ORDER BY ticker`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*models.Holding
	for rows.Next() {
		holding, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, holding)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

func scanHolding(row pgx.Row) (*models.Holding, error) {
	var h models.Holding
	var source, review string
	var candidateJSON []byte
	var updatedAt time.Time

	err := row.Scan(
		&h.HoldingID,
		&h.UserID,
		&h.Ticker,
		&h.AccountName,
		&h.Quantity,
		&h.CostBasis,
		&h.Currency,
		&source,
		&h.ExternalID,
		&review,
		&candidateJSON,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	h.Source = types.DataSource(source)
	h.Review = types.ReviewState(review)
	h.UpdatedAt = updatedAt

	if len(candidateJSON) > 0 {
		var candidate models.HoldingCandidate
		if err := json.Unmarshal(candidateJSON, &candidate); err != nil {
			return nil, fmt.Errorf("failed to unmarshal review candidate: %w", err)
		}
		h.ReviewCandidate = &candidate
	}

	return &h, nil
}
