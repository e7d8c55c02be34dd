package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/AtoyanMikhail/todoauth/internal/apperr"
	"github.com/AtoyanMikhail/todoauth/internal/repository/models"
)

// refreshTokenBytes gives 256 bits of entropy per token.
const refreshTokenBytes = 32

// RefreshTokenStore issues opaque refresh tokens and persists only their SHA-256
// digest. The plaintext is returned once, to the caller of Create or Rotate.
type RefreshTokenStore struct {
	repo models.RefreshTokenRepository
	ttl  time.Duration
	now  Clock
}

func NewRefreshTokenStore(repo models.RefreshTokenRepository, ttl time.Duration, now Clock) *RefreshTokenStore {
	if now == nil {
		now = time.Now
	}
	return &RefreshTokenStore{repo: repo, ttl: ttl, now: now}
}

// Create persists a new usable token for userID and returns it with its expiry.
func (s *RefreshTokenStore) Create(ctx context.Context, userID int64) (string, time.Time, error) {
	token, record, err := s.newRecord(userID)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to persist refresh token: %w", err)
	}
	return token, record.ExpiresAt, nil
}

// FindUsable returns apperr.ErrRefreshInvalid unless token is known, not revoked and
// not expired.
func (s *RefreshTokenStore) FindUsable(ctx context.Context, token string) (*models.RefreshToken, error) {
	if token == "" {
		return nil, apperr.ErrRefreshInvalid
	}
	record, err := s.repo.FindUsable(ctx, hashToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperr.ErrRefreshInvalid
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	return record, nil
}

// Revoke marks the token revoked and reports whether it was known. Revoking twice is
// not an error.
func (s *RefreshTokenStore) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	found, err := s.repo.Revoke(ctx, hashToken(token), s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return found, nil
}

// Rotate revokes token and issues its successor atomically. Only one of several
// concurrent callers presenting the same token succeeds; the rest get
// apperr.ErrRefreshInvalid.
func (s *RefreshTokenStore) Rotate(ctx context.Context, token string, userID int64) (string, time.Time, error) {
	if token == "" {
		return "", time.Time{}, apperr.ErrRefreshInvalid
	}
	next, record, err := s.newRecord(userID)
	if err != nil {
		return "", time.Time{}, err
	}

	if err := s.repo.Rotate(ctx, hashToken(token), record, record.CreatedAt); err != nil {
		if errors.Is(err, models.ErrTokenNotUsable) {
			return "", time.Time{}, apperr.ErrRefreshInvalid
		}
		return "", time.Time{}, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return next, record.ExpiresAt, nil
}

func (s *RefreshTokenStore) newRecord(userID int64) (string, *models.RefreshToken, error) {
	token, err := newOpaqueToken()
	if err != nil {
		return "", nil, err
	}
	now := s.now().UTC()
	return token, &models.RefreshToken{
		TokenHash: hashToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func newOpaqueToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
