package models

import (
	"database/sql"
	"time"
)

// RefreshToken is a persisted refresh token row. Only the SHA-256 hex digest of the
// opaque token is stored. Rows are never deleted; revocation is a flag.
type RefreshToken struct {
	ID        int64        `db:"id" json:"id"`
	TokenHash string       `db:"token_hash" json:"-"`
	UserID    int64        `db:"user_id" json:"user_id"`
	ExpiresAt time.Time    `db:"expires_at" json:"expires_at"`
	Revoked   bool         `db:"revoked" json:"revoked"`
	RevokedAt sql.NullTime `db:"revoked_at" json:"-"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// Usable reports whether the token can still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
