// Package aggregator provides the client for the external account-aggregation API.
// The wire format is treated as opaque; raw records are handed to the mapper
// for conversion into the domain model.
package aggregator

import (
	"context"
	"time"
)

// Account represents a linked financial account as reported by the aggregator.
type Account struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Type      string `json:"type"` // depository, investment, credit
	Currency  string `json:"iso_currency_code"`
	Balance   string `json:"current_balance"`
}

// Holding represents a raw security position from the aggregator.
type Holding struct {
	HoldingID string `json:"holding_id"`
	AccountID string `json:"account_id"`
	Symbol    string `json:"ticker_symbol"`
	Quantity  string `json:"quantity"`
	CostBasis string `json:"cost_basis"`
	Currency  string `json:"iso_currency_code"`
}

// Transaction represents a raw transaction from the aggregator.
type Transaction struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	Amount        string `json:"amount"` // positive = debit, negative = credit
	Currency      string `json:"iso_currency_code"`
	Date          string `json:"date"` // YYYY-MM-DD
	Description   string `json:"name"`
	Category      string `json:"category"`
}

// Client fetches account data from the aggregator on behalf of a linked user.
// Implementations classify failures via syncerr (retryable vs. fatal).
type Client interface {
	FetchAccounts(ctx context.Context, accessToken string) ([]*Account, error)
	FetchHoldings(ctx context.Context, accessToken string) ([]*Holding, error)
	FetchTransactions(ctx context.Context, accessToken string, fromDate time.Time) ([]*Transaction, error)
}
