package models

import "time"

// Connection represents a user's link to the account aggregator.
// Created by the account-linking flow; the sync pipeline reads it and
// updates LastSyncedAt after each successful attempt.
type Connection struct {
	UserID         string     `json:"userId" db:"user_id"`
	AccessToken    string     `json:"-" db:"access_token"`
	LinkedAccounts []string   `json:"linkedAccounts" db:"linked_accounts"`
	LastSyncedAt   *time.Time `json:"lastSyncedAt,omitempty" db:"last_synced_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
}
