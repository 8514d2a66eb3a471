package models

import (
	"time"

	"github.com/account-sync/internal/types"
)

// SyncRequest represents one unit of queued sync work.
// It is owned by the scheduler while queued and handed to the executor
// for the duration of a single attempt.
type SyncRequest struct {
	RequestID  string             `json:"requestId" db:"request_id"`
	UserID     string             `json:"userId" db:"user_id"`
	Trigger    types.TriggerKind  `json:"trigger" db:"trigger_kind"`
	Priority   int                `json:"priority" db:"priority"`
	State      types.RequestState `json:"state" db:"state"`
	EligibleAt time.Time          `json:"eligibleAt" db:"eligible_at"`
	EnqueuedAt time.Time          `json:"enqueuedAt" db:"enqueued_at"`
	RetryCount int                `json:"retryCount" db:"retry_count"`
	Metadata   map[string]string  `json:"metadata,omitempty" db:"metadata"`
}

// Eligible reports whether the request may be dispatched at the given time.
// A retrying request becomes eligible once its backoff delay has elapsed.
func (r *SyncRequest) Eligible(now time.Time) bool {
	if r.State != types.RequestEnqueued && r.State != types.RequestRetrying {
		return false
	}
	return !r.EligibleAt.After(now)
}
