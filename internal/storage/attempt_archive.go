package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/account-sync/internal/models"
)

// AttemptArchive mirrors finalized sync attempts into ClickHouse for
// long-window statistics. Postgres remains the source of truth; the archive
// serves stats windows beyond the Postgres retention period.
type AttemptArchive struct {
	db *ClickHouseDB
}

// NewAttemptArchive creates a new attempt archive
func NewAttemptArchive(db *ClickHouseDB) *AttemptArchive {
	return &AttemptArchive{db: db}
}

// BatchInsert archives finalized attempts.
func (a *AttemptArchive) BatchInsert(ctx context.Context, attempts []*models.SyncAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	batch, err := a.db.Conn().PrepareBatch(ctx, `
		INSERT INTO sync_attempt_archive (
			attempt_id, user_id, trigger_kind, status, started_at,
			completed_at, duration_ms, items_synced, error
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}

	for _, attempt := range attempts {
		completedAt := time.Time{}
		if attempt.CompletedAt != nil {
			completedAt = *attempt.CompletedAt
		}

		errMsg := ""
		if attempt.Error != nil {
			errMsg = *attempt.Error
		}

		err := batch.Append(
			attempt.AttemptID,
			attempt.UserID,
			string(attempt.Trigger),
			string(attempt.Status),
			attempt.StartedAt,
			completedAt,
			attempt.DurationMs,
			int32(attempt.ItemsSynced),
			errMsg,
		)
		if err != nil {
			return fmt.Errorf("failed to append attempt to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send archive batch: %w", err)
	}

	return nil
}

// CountByStatus aggregates archived attempts per status over a window.
func (a *AttemptArchive) CountByStatus(ctx context.Context, window time.Duration) (map[string]uint64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM sync_attempt_archive
		WHERE started_at >= now() - INTERVAL ? SECOND
		GROUP BY status
	`

	rows, err := a.db.Conn().Query(ctx, query, int64(window.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to query archive counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var status string
		var count uint64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan archive count: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}
