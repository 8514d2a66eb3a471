package models

import (
	"testing"
	"time"

	"github.com/account-sync/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestSyncRequestEligible(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		state      types.RequestState
		eligibleAt time.Time
		expected   bool
	}{
		{"enqueued and due", types.RequestEnqueued, now.Add(-time.Second), true},
		{"enqueued exactly at the boundary", types.RequestEnqueued, now, true},
		{"enqueued but not yet due", types.RequestEnqueued, now.Add(time.Second), false},
		{"retrying after backoff elapsed", types.RequestRetrying, now.Add(-time.Second), true},
		{"retrying within backoff", types.RequestRetrying, now.Add(time.Minute), false},
		{"dispatched is never eligible", types.RequestDispatched, now.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &SyncRequest{State: tt.state, EligibleAt: tt.eligibleAt}
			assert.Equal(t, tt.expected, req.Eligible(now))
		})
	}
}
