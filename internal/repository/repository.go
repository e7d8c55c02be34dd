package repository

import (
	"context"

	"github.com/AtoyanMikhail/todoauth/internal/repository/models"
)

// Store vends the repositories of one storage backend.
type Store interface {
	Users() models.UserRepository
	RefreshTokens() models.RefreshTokenRepository
	Ping(ctx context.Context) error
	Close() error
}
