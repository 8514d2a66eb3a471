package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/types"
	"github.com/jackc/pgx/v5"
)

// SyncAttemptRepository handles the append-only sync attempt log in Postgres.
// Attempts are created at start, finalized exactly once, and never mutated
// afterwards except by the stuck-attempt sweep.
type SyncAttemptRepository struct {
	db *PostgresDB
}

// NewSyncAttemptRepository creates a new sync attempt repository
func NewSyncAttemptRepository(db *PostgresDB) *SyncAttemptRepository {
	return &SyncAttemptRepository{db: db}
}

// Create opens a new attempt record.
func (r *SyncAttemptRepository) Create(ctx context.Context, attempt *models.SyncAttempt) error {
	query := `
		INSERT INTO sync_attempts (
			attempt_id, user_id, trigger_kind, status, started_at,
			completed_at, duration_ms, items_synced, error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		attempt.AttemptID,
		attempt.UserID,
		string(attempt.Trigger),
		string(attempt.Status),
		attempt.StartedAt,
		attempt.CompletedAt,
		attempt.DurationMs,
		attempt.ItemsSynced,
		attempt.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync attempt: %w", err)
	}

	return nil
}

// MarkInProgress transitions a pending attempt to in_progress.
func (r *SyncAttemptRepository) MarkInProgress(ctx context.Context, attemptID string) error {
	query := `UPDATE sync_attempts SET status = $2 WHERE attempt_id = $1 AND status = $3`

	result, err := r.db.Pool().Exec(ctx, query,
		attemptID,
		string(types.AttemptInProgress),
		string(types.AttemptPending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark attempt in progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("pending sync attempt not found: %s", attemptID)
	}

	return nil
}

// Finalize records the terminal status of an attempt. Already-terminal
// attempts are left untouched so finalization happens at most once.
func (r *SyncAttemptRepository) Finalize(ctx context.Context, attemptID string, status types.AttemptStatus, itemsSynced int, errMsg *string) error {
	if !status.Terminal() {
		return fmt.Errorf("cannot finalize attempt with non-terminal status %s", status)
	}

	query := `
		UPDATE sync_attempts
		SET status = $2,
			completed_at = NOW(),
			duration_ms = EXTRACT(EPOCH FROM (NOW() - started_at)) * 1000,
			items_synced = $3,
			error = $4
		WHERE attempt_id = $1 AND status IN ($5, $6)
	`

	result, err := r.db.Pool().Exec(ctx, query,
		attemptID,
		string(status),
		itemsSynced,
		errMsg,
		string(types.AttemptPending),
		string(types.AttemptInProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize sync attempt: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("open sync attempt not found: %s", attemptID)
	}

	return nil
}

// GetLatestByUser returns the most recent attempt for a user, or nil.
func (r *SyncAttemptRepository) GetLatestByUser(ctx context.Context, userID string) (*models.SyncAttempt, error) {
	query := `
		SELECT attempt_id, user_id, trigger_kind, status, started_at,
			   completed_at, duration_ms, items_synced, error
		FROM sync_attempts
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`

	attempt, err := scanAttempt(r.db.Pool().QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest sync attempt: %w", err)
	}
	return attempt, nil
}

// HasInProgress reports whether the user has an attempt currently executing.
func (r *SyncAttemptRepository) HasInProgress(ctx context.Context, userID string) (bool, error) {
	query := `SELECT COUNT(*) FROM sync_attempts WHERE user_id = $1 AND status = $2`

	var count int
	err := r.db.Pool().QueryRow(ctx, query, userID, string(types.AttemptInProgress)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count in-progress attempts: %w", err)
	}
	return count > 0, nil
}

// Stats aggregates attempts within the window. userID may be empty for a
// service-wide view.
func (r *SyncAttemptRepository) Stats(ctx context.Context, userID string, window time.Duration) (*models.SyncStats, error) {
	query := `
		SELECT status, trigger_kind, COUNT(*), COALESCE(AVG(duration_ms), 0)
		FROM sync_attempts
		WHERE started_at >= NOW() - $1::interval
		  AND ($2 = '' OR user_id = $2)
		GROUP BY status, trigger_kind
	`

	rows, err := r.db.Pool().Query(ctx, query, window, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync stats: %w", err)
	}
	defer rows.Close()

	stats := &models.SyncStats{ByTrigger: make(map[types.TriggerKind]int)}
	var durationSum float64

	for rows.Next() {
		var status, trigger string
		var count int
		var avgDuration float64

		if err := rows.Scan(&status, &trigger, &count, &avgDuration); err != nil {
			return nil, fmt.Errorf("failed to scan sync stats: %w", err)
		}

		stats.Total += count
		stats.ByTrigger[types.TriggerKind(trigger)] += count
		durationSum += avgDuration * float64(count)

		switch types.AttemptStatus(status) {
		case types.AttemptSuccess:
			stats.Successful += count
		case types.AttemptFailed:
			stats.Failed += count
		case types.AttemptPartial:
			stats.Partial += count
		case types.AttemptPending, types.AttemptInProgress:
			stats.Pending += count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync stats: %w", err)
	}

	if stats.Total > 0 {
		stats.AverageDurationMs = durationSum / float64(stats.Total)
	}

	return stats, nil
}

// SweepStuck marks attempts stuck in_progress longer than maxAge as failed.
// This is the crash-recovery safety net: an interrupted process leaves an
// open attempt behind, and the sweep closes it on the next cycle.
func (r *SyncAttemptRepository) SweepStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	query := `
		UPDATE sync_attempts
		SET status = $1,
			completed_at = NOW(),
			duration_ms = EXTRACT(EPOCH FROM (NOW() - started_at)) * 1000,
			error = $2
		WHERE status = $3 AND started_at < NOW() - $4::interval
	`

	result, err := r.db.Pool().Exec(ctx, query,
		string(types.AttemptFailed),
		"timed out or interrupted",
		string(types.AttemptInProgress),
		maxAge,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stuck attempts: %w", err)
	}

	return int(result.RowsAffected()), nil
}

func scanAttempt(row pgx.Row) (*models.SyncAttempt, error) {
	var attempt models.SyncAttempt
	var trigger, status string
	var completedAt *time.Time
	var errMsg *string

	err := row.Scan(
		&attempt.AttemptID,
		&attempt.UserID,
		&trigger,
		&status,
		&attempt.StartedAt,
		&completedAt,
		&attempt.DurationMs,
		&attempt.ItemsSynced,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	attempt.Trigger = types.TriggerKind(trigger)
	attempt.Status = types.AttemptStatus(status)
	attempt.CompletedAt = completedAt
	attempt.Error = errMsg

	return &attempt, nil
}
