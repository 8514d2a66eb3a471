package models

import (
	"time"

	"github.com/account-sync/internal/types"
	"github.com/shopspring/decimal"
)

// IncomeEntry represents a credit transaction in a user's ledger.
// Aggregator-sourced entries are keyed on ExternalID for idempotent upserts.
type IncomeEntry struct {
	EntryID    string            `json:"entryId" db:"entry_id"`
	UserID     string            `json:"userId" db:"user_id"`
	Type       types.IncomeType  `json:"type" db:"income_type"`
	Ticker     string            `json:"ticker,omitempty" db:"ticker"`
	Amount     decimal.Decimal   `json:"amount" db:"amount"`
	Currency   string            `json:"currency" db:"currency"`
	Date       time.Time         `json:"date" db:"entry_date"`
	Source     types.DataSource  `json:"source" db:"source"`
	ExternalID *string           `json:"externalId,omitempty" db:"external_id"`
	Review     types.ReviewState `json:"review" db:"review"`
	UpdatedAt  time.Time         `json:"updatedAt" db:"updated_at"`
}

// ExpenseEntry represents a debit transaction in a user's ledger.
type ExpenseEntry struct {
	EntryID     string                `json:"entryId" db:"entry_id"`
	UserID      string                `json:"userId" db:"user_id"`
	Category    types.ExpenseCategory `json:"category" db:"category"`
	Description string                `json:"description" db:"description"`
	Amount      decimal.Decimal       `json:"amount" db:"amount"`
	Currency    string                `json:"currency" db:"currency"`
	Date        time.Time             `json:"date" db:"entry_date"`
	Source      types.DataSource      `json:"source" db:"source"`
	ExternalID  *string               `json:"externalId,omitempty" db:"external_id"`
	Review      types.ReviewState     `json:"review" db:"review"`
	UpdatedAt   time.Time             `json:"updatedAt" db:"updated_at"`
}
