// Package mapper converts raw aggregator records into domain records.
// All functions are pure: no network or storage access, deterministic for a
// given input. Record-level failures are collected, not raised, so one bad
// record never aborts a whole sync attempt.
package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/account-sync/internal/aggregator"
	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/types"
	"github.com/shopspring/decimal"
)

// RecordError identifies a single raw record that could not be mapped.
type RecordError struct {
	ExternalID string
	Err        error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.ExternalID, e.Err)
}

// Mapped holds the domain-shaped output of one aggregator snapshot.
type Mapped struct {
	Holdings []*models.Holding
	Income   []*models.IncomeEntry
	Expenses []*models.ExpenseEntry
	Errors   []*RecordError
}

// ItemCount returns the number of successfully mapped records.
func (m *Mapped) ItemCount() int {
	return len(m.Holdings) + len(m.Income) + len(m.Expenses)
}

// MapSnapshot maps a full aggregator snapshot for one user.
func MapSnapshot(userID string, accounts []*aggregator.Account, holdings []*aggregator.Holding, transactions []*aggregator.Transaction) *Mapped {
	accountNames := make(map[string]string, len(accounts))
	for _, acc := range accounts {
		accountNames[acc.AccountID] = acc.Name
	}

	out := &Mapped{}

	for _, h := range holdings {
		mapped, err := MapHolding(userID, h, accountNames[h.AccountID])
		if err != nil {
			out.Errors = append(out.Errors, &RecordError{ExternalID: h.HoldingID, Err: err})
			continue
		}
		out.Holdings = append(out.Holdings, mapped)
	}

	for _, tx := range transactions {
		income, expense, err := MapTransaction(userID, tx)
		if err != nil {
			out.Errors = append(out.Errors, &RecordError{ExternalID: tx.TransactionID, Err: err})
			continue
		}
		if income != nil {
			out.Income = append(out.Income, income)
		}
		if expense != nil {
			out.Expenses = append(out.Expenses, expense)
		}
	}

	return out
}

// MapHolding maps a raw aggregator holding to a domain holding.
func MapHolding(userID string, raw *aggregator.Holding, accountName string) (*models.Holding, error) {
	ticker := NormalizeTicker(raw.Symbol)
	if ticker == "" {
		return nil, fmt.Errorf("missing ticker symbol")
	}

	quantity, err := decimal.NewFromString(raw.Quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", raw.Quantity, err)
	}

	costBasis := decimal.Zero
	if raw.CostBasis != "" {
		costBasis, err = decimal.NewFromString(raw.CostBasis)
		if err != nil {
			return nil, fmt.Errorf("invalid cost basis %q: %w", raw.CostBasis, err)
		}
	}

	externalID := raw.HoldingID
	return &models.Holding{
		UserID:      userID,
		Ticker:      ticker,
		AccountName: accountName,
		Quantity:    quantity,
		CostBasis:   costBasis,
		Currency:    normalizeCurrency(raw.Currency),
		Source:      types.SourceAggregator,
		ExternalID:  &externalID,
		Review:      types.ReviewNone,
	}, nil
}

// MapTransaction maps a raw transaction to either an income or an expense entry.
// Aggregator convention: positive amounts are debits, negative amounts credits.
func MapTransaction(userID string, raw *aggregator.Transaction) (*models.IncomeEntry, *models.ExpenseEntry, error) {
	amount, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid amount %q: %w", raw.Amount, err)
	}

	date, err := time.Parse("2006-01-02", raw.Date)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid date %q: %w", raw.Date, err)
	}

	externalID := raw.TransactionID
	currency := normalizeCurrency(raw.Currency)

	if amount.IsNegative() {
		// Credit: classify dividend-type income distinctly from generic deposits.
		income := &models.IncomeEntry{
			UserID:     userID,
			Type:       classifyIncome(raw.Description, raw.Category),
			Amount:     amount.Neg(),
			Currency:   currency,
			Date:       date,
			Source:     types.SourceAggregator,
			ExternalID: &externalID,
			Review:     types.ReviewNone,
		}
		return income, nil, nil
	}

	expense := &models.ExpenseEntry{
		UserID:      userID,
		Category:    MapCategory(raw.Category),
		Description: strings.TrimSpace(raw.Description),
		Amount:      amount,
		Currency:    currency,
		Date:        date,
		Source:      types.SourceAggregator,
		ExternalID:  &externalID,
		Review:      types.ReviewNone,
	}
	return nil, expense, nil
}

// NormalizeTicker canonicalizes a ticker symbol: uppercase, trimmed, with any
// leading cash prefix or exchange suffix removed ("$aapl", "AAPL:NASDAQ" -> "AAPL").
func NormalizeTicker(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimPrefix(s, "$")
	if idx := strings.IndexAny(s, ":."); idx > 0 {
		s = s[:idx]
	}
	return s
}

// dividendMarkers are substrings that identify dividend-type credits in
// aggregator descriptions or categories.
var dividendMarkers = []string{
	"dividend",
	"div payment",
	"distribution",
	"cap gain",
	"capital gain",
}

var interestMarkers = []string{
	"interest",
	"int payment",
}

// classifyIncome tags a credit as dividend, interest, or generic deposit
// based on heuristics over the description and category fields.
func classifyIncome(description, category string) types.IncomeType {
	haystack := strings.ToLower(description + " " + category)
	for _, marker := range dividendMarkers {
		if strings.Contains(haystack, marker) {
			return types.IncomeDividend
		}
	}
	for _, marker := range interestMarkers {
		if strings.Contains(haystack, marker) {
			return types.IncomeInterest
		}
	}
	return types.IncomeDeposit
}

// categoryTable maps the aggregator's category taxonomy onto the domain's
// fixed expense categories. Lookup is case-insensitive on the primary
// category token; unknown categories fall back to Other.
var categoryTable = map[string]types.ExpenseCategory{
	"rent":               types.CategoryHousing,
	"mortgage":           types.CategoryHousing,
	"home improvement":   types.CategoryHousing,
	"food and drink":     types.CategoryFood,
	"restaurants":        types.CategoryFood,
	"groceries":          types.CategoryFood,
	"coffee shop":        types.CategoryFood,
	"travel":             types.CategoryTravel,
	"airlines":           types.CategoryTravel,
	"lodging":            types.CategoryTravel,
	"taxi":               types.CategoryTransport,
	"ride share":         types.CategoryTransport,
	"gas stations":       types.CategoryTransport,
	"public transit":     types.CategoryTransport,
	"utilities":          types.CategoryUtilities,
	"telecommunications": types.CategoryUtilities,
	"internet":           types.CategoryUtilities,
	"healthcare":         types.CategoryHealthcare,
	"pharmacies":         types.CategoryHealthcare,
	"gyms and fitness":   types.CategoryHealthcare,
	"recreation":         types.CategoryEntertainment,
	"entertainment":      types.CategoryEntertainment,
	"streaming":          types.CategoryEntertainment,
	"shops":              types.CategoryShopping,
	"clothing":           types.CategoryShopping,
	"electronics":        types.CategoryShopping,
	"education":          types.CategoryEducation,
	"tuition":            types.CategoryEducation,
	"bank fees":          types.CategoryFees,
	"atm":                types.CategoryFees,
	"service fee":        types.CategoryFees,
}

// MapCategory maps an aggregator category string onto the domain enum.
// Aggregator categories may be hierarchical ("Food and Drink > Restaurants");
// the most specific token that matches wins.
func MapCategory(category string) types.ExpenseCategory {
	parts := strings.Split(category, ">")
	for i := len(parts) - 1; i >= 0; i-- {
		token := strings.ToLower(strings.TrimSpace(parts[i]))
		if mapped, ok := categoryTable[token]; ok {
			return mapped
		}
	}
	return types.CategoryOther
}

func normalizeCurrency(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "USD"
	}
	return c
}
