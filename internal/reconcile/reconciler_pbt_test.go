package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/account-sync/internal/mapper"
	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// Property: no sequence of aggregator snapshots ever changes the quantity of
// a manually-entered holding.
func TestManualHoldingNeverOverwritten(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("manual quantity survives any snapshot sequence", prop.ForAll(
		func(quantities []int64) bool {
			ctx := context.Background()
			holdings := newFakeHoldingStore()

			manualQty := decimal.NewFromInt(777)
			holdings.byNaturalKey["user-1/AAPL"] = &models.Holding{
				HoldingID: "manual-1",
				UserID:    "user-1",
				Ticker:    "AAPL",
				Quantity:  manualQty,
				Source:    types.SourceManual,
				Review:    types.ReviewNone,
			}

			r := NewReconciler(holdings, newFakeEntryStore())

			for i, q := range quantities {
				mapped := &mapper.Mapped{Holdings: []*models.Holding{
					aggHolding("user-1", "AAPL", fmt.Sprintf("ext-%d", i), fmt.Sprintf("%d", q)),
				}}
				if _, err := r.Reconcile(ctx, "user-1", mapped); err != nil {
					return false
				}
			}

			stored := holdings.byNaturalKey["user-1/AAPL"]
			return stored.Quantity.Equal(manualQty) && stored.Source == types.SourceManual
		},
		gen.SliceOf(gen.Int64Range(0, 1_000_000)),
	))

	properties.TestingRun(t)
}

// Property: replaying the same snapshot any number of times leaves exactly
// one stored holding per (user, ticker).
func TestReconcileReplayIdempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("replay count does not change stored state", prop.ForAll(
		func(replays int) bool {
			ctx := context.Background()
			holdings := newFakeHoldingStore()
			r := NewReconciler(holdings, newFakeEntryStore())

			mapped := &mapper.Mapped{Holdings: []*models.Holding{
				aggHolding("user-1", "VTI", "ext-1", "5"),
			}}

			for i := 0; i < replays; i++ {
				if _, err := r.Reconcile(ctx, "user-1", mapped); err != nil {
					return false
				}
			}

			if replays == 0 {
				return len(holdings.byNaturalKey) == 0
			}
			return len(holdings.byNaturalKey) == 1
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
