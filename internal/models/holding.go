package models

import (
	"time"

	"github.com/account-sync/internal/types"
	"github.com/shopspring/decimal"
)

// Holding represents a security position in a user's portfolio.
// The (UserID, Ticker) pair is the natural key for reconciliation.
type Holding struct {
	HoldingID   string            `json:"holdingId" db:"holding_id"`
	UserID      string            `json:"userId" db:"user_id"`
	Ticker      string            `json:"ticker" db:"ticker"`
	AccountName string            `json:"accountName" db:"account_name"`
	Quantity    decimal.Decimal   `json:"quantity" db:"quantity"`
	CostBasis   decimal.Decimal   `json:"costBasis" db:"cost_basis"`
	Currency    string            `json:"currency" db:"currency"`
	Source      types.DataSource  `json:"source" db:"source"`
	ExternalID  *string           `json:"externalId,omitempty" db:"external_id"`
	Review      types.ReviewState `json:"review" db:"review"`
	// ReviewCandidate carries the conflicting aggregator snapshot attached to a
	// manual record pending user-driven merge. Serialized JSON in storage.
	ReviewCandidate *HoldingCandidate `json:"reviewCandidate,omitempty" db:"review_candidate"`
	UpdatedAt       time.Time         `json:"updatedAt" db:"updated_at"`
}

// HoldingCandidate is the aggregator-side view of a conflicting holding.
type HoldingCandidate struct {
	ExternalID string          `json:"externalId"`
	Quantity   decimal.Decimal `json:"quantity"`
	CostBasis  decimal.Decimal `json:"costBasis"`
	AsOf       time.Time       `json:"asOf"`
}
