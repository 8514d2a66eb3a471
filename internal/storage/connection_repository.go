package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/account-sync/internal/models"
	"github.com/jackc/pgx/v5"
)

// ConnectionRepository handles aggregator connection persistence.
type ConnectionRepository struct {
	db *PostgresDB
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *PostgresDB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// GetByUser retrieves the aggregator connection for a user, or nil if the
// user has no linked account.
func (r *ConnectionRepository) GetByUser(ctx context.Context, userID string) (*models.Connection, error) {
	query := `
		SELECT user_id, access_token, linked_accounts, last_synced_at, created_at
		FROM connections
		WHERE user_id = $1
	`

	var conn models.Connection
	var lastSyncedAt *time.Time

	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&conn.UserID,
		&conn.AccessToken,
		&conn.LinkedAccounts,
		&lastSyncedAt,
		&conn.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	conn.LastSyncedAt = lastSyncedAt
	return &conn, nil
}

// UpdateLastSyncedAt records the completion time of a successful sync.
func (r *ConnectionRepository) UpdateLastSyncedAt(ctx context.Context, userID string, syncedAt time.Time) error {
	query := `UPDATE connections SET last_synced_at = $2 WHERE user_id = $1`

	result, err := r.db.Pool().Exec(ctx, query, userID, syncedAt)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("connection not found for user: %s", userID)
	}

	return nil
}
