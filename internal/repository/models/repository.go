package models

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicate      = errors.New("record already exists")
	ErrTokenNotUsable = errors.New("refresh token is revoked, expired or unknown")
)

type UserRepository interface {
	// Create inserts u and fills its ID and CreatedAt. Returns ErrDuplicate on a
	// username or email conflict.
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context) ([]*User, error)
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	// FindUsable returns the non-revoked row for tokenHash that expires after now.
	FindUsable(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)
	// Revoke flags the row as revoked and reports whether it exists.
	Revoke(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	// Rotate revokes the usable row for oldHash and inserts next in one atomic step.
	// Returns ErrTokenNotUsable when oldHash is not usable at now.
	Rotate(ctx context.Context, oldHash string, next *RefreshToken, now time.Time) error
}
