package models

import (
	"time"

	"github.com/account-sync/internal/types"
)

// SyncAttempt represents one execution of a sync for one user.
// It is created at attempt start and finalized exactly once at attempt end;
// it is never mutated afterwards.
type SyncAttempt struct {
	AttemptID   string              `json:"attemptId" db:"attempt_id"`
	UserID      string              `json:"userId" db:"user_id"`
	Trigger     types.TriggerKind   `json:"trigger" db:"trigger_kind"`
	Status      types.AttemptStatus `json:"status" db:"status"`
	StartedAt   time.Time           `json:"startedAt" db:"started_at"`
	CompletedAt *time.Time          `json:"completedAt,omitempty" db:"completed_at"`
	DurationMs  int64               `json:"durationMs" db:"duration_ms"`
	ItemsSynced int                 `json:"itemsSynced" db:"items_synced"`
	Error       *string             `json:"error,omitempty" db:"error"`
}

// SyncStats summarizes attempts over a time window.
type SyncStats struct {
	Total             int                       `json:"total"`
	Successful        int                       `json:"successful"`
	Failed            int                       `json:"failed"`
	Partial           int                       `json:"partial"`
	Pending           int                       `json:"pending"`
	AverageDurationMs float64                   `json:"averageDurationMs"`
	ByTrigger         map[types.TriggerKind]int `json:"byTrigger"`
}
