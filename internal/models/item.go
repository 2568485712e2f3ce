package models

import (
	"time"

	"github.com/google/uuid"
)

type ItemStatus string

const (
	ItemStatusActive            ItemStatus = "active"
	ItemStatusLoginRequired     ItemStatus = "login_required"
	ItemStatusPendingExpiration ItemStatus = "pending_expiration"
	ItemStatusRevoked           ItemStatus = "revoked"
	ItemStatusError             ItemStatus = "error"
)

// Item is a linked Plaid login at one institution.
type Item struct {
	ID                   uuid.UUID  `db:"id"`
	UserID               uuid.UUID  `db:"user_id"`
	PlaidItemID          string     `db:"plaid_item_id"`
	AccessTokenEncrypted string     `db:"access_token_encrypted"`
	InstitutionID        string     `db:"institution_id"`
	InstitutionName      string     `db:"institution_name"`
	Status               ItemStatus `db:"status"`
	ErrorCode            string     `db:"error_code"`
	SyncCursor           string     `db:"sync_cursor"`
	LastSyncedAt         *time.Time `db:"last_synced_at"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}
