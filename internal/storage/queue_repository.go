package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/types"
)

// QueueRepository persists queued sync requests so pending and retrying work
// survives a process restart. It satisfies the scheduler's Store interface.
type QueueRepository struct {
	db *PostgresDB
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *PostgresDB) *QueueRepository {
	return &QueueRepository{db: db}
}

// SaveQueuedRequest inserts or refreshes the durable snapshot of a request.
func (r *QueueRepository) SaveQueuedRequest(ctx context.Context, req *models.SyncRequest) error {
	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal request metadata: %w", err)
	}

	query := `
		INSERT INTO sync_queue (
			request_id, user_id, trigger_kind, priority, state,
			eligible_at, enqueued_at, retry_count, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (request_id)
		DO UPDATE SET
			state = EXCLUDED.state,
			eligible_at = EXCLUDED.eligible_at,
			retry_count = EXCLUDED.retry_count
	`

	_, err = r.db.Pool().Exec(ctx, query,
		req.RequestID,
		req.UserID,
		string(req.Trigger),
		req.Priority,
		string(req.State),
		req.EligibleAt,
		req.EnqueuedAt,
		req.RetryCount,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save queued request: %w", err)
	}

	return nil
}

// LoadPendingRequests returns all persisted requests, oldest first.
// The scheduler decides staleness at rehydration time.
func (r *QueueRepository) LoadPendingRequests(ctx context.Context) ([]*models.SyncRequest, error) {
	query := `
		SELECT request_id, user_id, trigger_kind, priority, state,
			   eligible_at, enqueued_at, retry_count, metadata
		FROM sync_queue
		ORDER BY enqueued_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.SyncRequest
	for rows.Next() {
		var req models.SyncRequest
		var trigger, state string
		var eligibleAt, enqueuedAt time.Time
		var metadataJSON []byte

		err := rows.Scan(
			&req.RequestID,
			&req.UserID,
			&trigger,
			&req.Priority,
			&state,
			&eligibleAt,
			&enqueuedAt,
			&req.RetryCount,
			&metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queued request: %w", err)
		}

		req.Trigger = types.TriggerKind(trigger)
		req.State = types.RequestState(state)
		req.EligibleAt = eligibleAt
		req.EnqueuedAt = enqueuedAt

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &req.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal request metadata: %w", err)
			}
		}

		requests = append(requests, &req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queued requests: %w", err)
	}

	return requests, nil
}

// DeleteQueuedRequest removes a request's durable snapshot after terminal
// success or exhaustion.
func (r *QueueRepository) DeleteQueuedRequest(ctx context.Context, requestID string) error {
	query := `DELETE FROM sync_queue WHERE request_id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, requestID); err != nil {
		return fmt.Errorf("failed to delete queued request: %w", err)
	}

	return nil
}
