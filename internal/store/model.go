// Package store persists user-to-server connections with their credentials
// encrypted at rest. The Repository handles rows, the Store layers
// per-user-key encryption on top so callers never touch ciphertext directly.
package store

import "time"

// Status describes whether a connection is usable.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Connection is one user's link to one tool server. Token columns hold
// opaque encrypted blobs; use Store.DecryptedTokens to read them.
// At most one connection exists per (UserID, ServerSlug) pair.
type Connection struct {
	ID                    string     `db:"id"`
	UserID                string     `db:"user_id"`
	OrgID                 string     `db:"org_id"`
	ServerSlug            string     `db:"server_slug"`
	EncryptedAccessToken  string     `db:"encrypted_access_token"`
	EncryptedRefreshToken string     `db:"encrypted_refresh_token"`
	ExpiresAt             *time.Time `db:"expires_at"`
	Status                Status     `db:"status"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

// TokenData is the plaintext credential bundle for a connection. For
// API-key servers AccessToken holds the key and RefreshToken is empty.
type TokenData struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}
