package storage

import (
	"context"
	"fmt"

	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/types"
	"github.com/google/uuid"
)

// EntryRepository handles income and expense entry persistence in Postgres.
// Aggregator-sourced entries are keyed on (user, external id) so that a
// retried attempt never double-inserts a transaction.
type EntryRepository struct {
	db *PostgresDB
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(db *PostgresDB) *EntryRepository {
	return &EntryRepository{db: db}
}

// UpsertIncome inserts or updates an aggregator-sourced income entry.
func (r *EntryRepository) UpsertIncome(ctx context.Context, e *models.IncomeEntry) error {
	if e.ExternalID == nil {
		return fmt.Errorf("aggregator income entry requires an external id")
	}
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}

	query := `
		INSERT INTO income_entries (
			entry_id, user_id, income_type, ticker, amount, currency,
			entry_date, source, external_id, review, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (user_id, external_id) WHERE external_id IS NOT NULL
		DO UPDATE SET
			income_type = EXCLUDED.income_type,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			entry_date = EXCLUDED.entry_date,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		e.EntryID,
		e.UserID,
		string(e.Type),
		e.Ticker,
		e.Amount,
		e.Currency,
		e.Date,
		string(types.SourceAggregator),
		e.ExternalID,
		string(types.ReviewNone),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert income entry: %w", err)
	}

	return nil
}

// UpsertExpense inserts or updates an aggregator-sourced expense entry.
func (r *EntryRepository) UpsertExpense(ctx context.Context, e *models.ExpenseEntry) error {
	if e.ExternalID == nil {
		return fmt.Errorf("aggregator expense entry requires an external id")
	}
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}

	query := `
		INSERT INTO expense_entries (
			entry_id, user_id, category, description, amount, currency,
			entry_date, source, external_id, review, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (user_id, external_id) WHERE external_id IS NOT NULL
		DO UPDATE SET
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			entry_date = EXCLUDED.entry_date,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		e.EntryID,
		e.UserID,
		string(e.Category),
		e.Description,
		e.Amount,
		e.Currency,
		e.Date,
		string(types.SourceAggregator),
		e.ExternalID,
		string(types.ReviewNone),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert expense entry: %w", err)
	}

	return nil
}
