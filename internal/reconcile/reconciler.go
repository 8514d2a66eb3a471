// Package reconcile merges aggregator-sourced records into domain storage.
//
// The merge policy is asymmetric: the aggregator freely overwrites its own
// prior writes (keyed on external id), but it never silently overwrites a
// manually-entered record. A conflicting manual record is flagged for review
// with the aggregator data attached as a merge candidate; resolving the
// conflict is a user action outside this pipeline.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/mapper"
	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/types"
)

// HoldingStore is the storage surface the reconciler needs for holdings.
type HoldingStore interface {
	GetByNaturalKey(ctx context.Context, userID, ticker string) (*models.Holding, error)
	UpsertAggregator(ctx context.Context, h *models.Holding) error
	FlagForReview(ctx context.Context, holdingID string, candidate *models.HoldingCandidate) error
}

// EntryStore is the storage surface the reconciler needs for ledger entries.
type EntryStore interface {
	UpsertIncome(ctx context.Context, e *models.IncomeEntry) error
	UpsertExpense(ctx context.Context, e *models.ExpenseEntry) error
}

// Result summarizes one reconcile pass.
type Result struct {
	Upserted         int
	FlaggedForReview int
	// RecordErrors lists individual records whose upsert failed. They do not
	// abort the pass; the attempt is finalized Partial instead.
	RecordErrors []string
}

// Reconciler merges mapped records into domain storage.
type Reconciler struct {
	holdings HoldingStore
	entries  EntryStore
}

// NewReconciler creates a new reconciler.
func NewReconciler(holdings HoldingStore, entries EntryStore) *Reconciler {
	return &Reconciler{holdings: holdings, entries: entries}
}

// Reconcile merges one mapped aggregator snapshot for one user. All upserts
// are idempotent, so a retried attempt after a partial failure never
// double-counts records.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, mapped *mapper.Mapped) (*Result, error) {
	logger := logging.FromContext(ctx).WithField("userId", userID)
	result := &Result{}

	for _, holding := range mapped.Holdings {
		if err := r.reconcileHolding(ctx, userID, holding, result); err != nil {
			result.RecordErrors = append(result.RecordErrors, fmt.Sprintf("holding %s: %v", holding.Ticker, err))
		}
	}

	for _, income := range mapped.Income {
		if err := r.entries.UpsertIncome(ctx, income); err != nil {
			result.RecordErrors = append(result.RecordErrors, fmt.Sprintf("income %s: %v", deref(income.ExternalID), err))
			continue
		}
		result.Upserted++
	}

	for _, expense := range mapped.Expenses {
		if err := r.entries.UpsertExpense(ctx, expense); err != nil {
			result.RecordErrors = append(result.RecordErrors, fmt.Sprintf("expense %s: %v", deref(expense.ExternalID), err))
			continue
		}
		result.Upserted++
	}

	logger.WithFields(map[string]interface{}{
		"upserted":     result.Upserted,
		"flagged":      result.FlaggedForReview,
		"recordErrors": len(result.RecordErrors),
	}).Info("Reconcile pass completed")

	return result, nil
}

func (r *Reconciler) reconcileHolding(ctx context.Context, userID string, holding *models.Holding, result *Result) error {
	existing, err := r.holdings.GetByNaturalKey(ctx, userID, holding.Ticker)
	if err != nil {
		return err
	}

	if existing == nil || existing.Source == types.SourceAggregator {
		// Fresh insert, or the aggregator updating its own prior write.
		if err := r.holdings.UpsertAggregator(ctx, holding); err != nil {
			return err
		}
		result.Upserted++
		return nil
	}

	// Manual record: leave its financial fields untouched, attach the
	// aggregator snapshot as a merge candidate.
	candidate := &models.HoldingCandidate{
		ExternalID: deref(holding.ExternalID),
		Quantity:   holding.Quantity,
		CostBasis:  holding.CostBasis,
		AsOf:       time.Now().UTC(),
	}
	if err := r.holdings.FlagForReview(ctx, existing.HoldingID, candidate); err != nil {
		return err
	}
	result.FlaggedForReview++
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
