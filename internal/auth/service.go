package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AtoyanMikhail/todoauth/internal/apperr"
	"github.com/AtoyanMikhail/todoauth/internal/cache"
	"github.com/AtoyanMikhail/todoauth/internal/logger"
	"github.com/AtoyanMikhail/todoauth/internal/repository/models"
)

const TokenTypeBearer = "bearer"

// TokenPair is handed to the client after login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// Service orchestrates registration, login, refresh and logout. It keeps no state
// of its own; atomicity comes from the repositories.
type Service struct {
	users     models.UserRepository
	hasher    PasswordHasher
	codec     *TokenCodec
	refresh   *RefreshTokenStore
	guard     cache.LoginGuard
	accessTTL time.Duration
	logger    logger.Logger

	// dummyHash is verified against when the username is unknown, so both
	// failure paths pay for one hash comparison.
	dummyHash string
}

// NewService returns a Service. A nil guard disables login throttling.
func NewService(
	users models.UserRepository,
	hasher PasswordHasher,
	codec *TokenCodec,
	refresh *RefreshTokenStore,
	guard cache.LoginGuard,
	accessTTL time.Duration,
	l logger.Logger,
) (*Service, error) {
	dummy, err := hasher.Hash("dummy-password-for-unknown-users")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	if guard == nil {
		guard = cache.NopLoginGuard()
	}

	return &Service{
		users:     users,
		hasher:    hasher,
		codec:     codec,
		refresh:   refresh,
		guard:     guard,
		accessTTL: accessTTL,
		logger:    l,
		dummyHash: dummy,
	}, nil
}

func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	if len(password) > MaxPasswordBytes {
		return nil, apperr.Validation(fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("Failed to hash password", logger.Error(err))
		return nil, apperr.Internal(err)
	}

	user := &models.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, apperr.ErrDuplicateIdentity
		}
		s.logger.Error("Failed to create user", logger.Error(err))
		return nil, apperr.Internal(err)
	}

	s.logger.Info("User registered", logger.Int64("user_id", user.ID))
	return user, nil
}

// Authenticate returns the same apperr.ErrAuthFailed for an unknown username and a
// wrong password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, apperr.ErrAuthFailed
		}
		s.logger.Error("Failed to look up user", logger.Error(err))
		return nil, apperr.Internal(err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, apperr.ErrAuthFailed
	}
	return user, nil
}

// IssueSession mints an access token and persists a refresh token. Nothing is
// returned unless both succeed.
func (s *Service) IssueSession(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, err := s.codec.Encode(Identity{UserID: user.ID, Username: user.Username}, s.accessTTL)
	if err != nil {
		s.logger.Error("Failed to mint access token", logger.Error(err))
		return nil, apperr.Internal(err)
	}

	refresh, _, err := s.refresh.Create(ctx, user.ID)
	if err != nil {
		s.logger.Error("Failed to issue refresh token", logger.Int64("user_id", user.ID), logger.Error(err))
		return nil, apperr.Internal(err)
	}

	return s.pair(access, refresh), nil
}

// Login authenticates and issues a session. Attempts are throttled per
// username and remoteIP; the guard failing open is logged, not surfaced.
func (s *Service) Login(ctx context.Context, username, password, remoteIP string) (*TokenPair, error) {
	key := cache.AttemptKey(username, remoteIP)

	allowed, err := s.guard.Allow(ctx, key)
	if err != nil {
		s.logger.Warn("Login guard unavailable", logger.Error(err))
	} else if !allowed {
		return nil, apperr.ErrTooManyAttempts
	}

	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, apperr.ErrAuthFailed) {
			if _, gerr := s.guard.RegisterFailure(ctx, key); gerr != nil {
				s.logger.Warn("Failed to record login failure", logger.Error(gerr))
			}
		}
		return nil, err
	}

	pair, err := s.IssueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.guard.Reset(ctx, key); err != nil {
		s.logger.Warn("Failed to reset login attempts", logger.Error(err))
	}
	s.logger.Info("User logged in", logger.Int64("user_id", user.ID))
	return pair, nil
}

// Refresh exchanges a usable refresh token for a new pair. The presented token is
// dead afterwards; presenting it again yields apperr.ErrRefreshInvalid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	record, err := s.refresh.FindUsable(ctx, refreshToken)
	if err != nil {
		return nil, s.classify("Failed to look up refresh token", err)
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperr.ErrRefreshInvalid
		}
		return nil, s.classify("Failed to load refresh token owner", err)
	}

	access, err := s.codec.Encode(Identity{UserID: user.ID, Username: user.Username}, s.accessTTL)
	if err != nil {
		return nil, s.classify("Failed to mint access token", err)
	}

	next, _, err := s.refresh.Rotate(ctx, refreshToken, user.ID)
	if err != nil {
		return nil, s.classify("Failed to rotate refresh token", err)
	}

	s.logger.Info("Refresh token rotated", logger.Int64("user_id", user.ID))
	return s.pair(access, next), nil
}

// Logout revokes refreshToken if it belongs to who. Unknown, dead and foreign
// tokens are a silent no-op; only a storage failure is an error.
func (s *Service) Logout(ctx context.Context, refreshToken string, who Identity) error {
	record, err := s.refresh.FindUsable(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, apperr.ErrRefreshInvalid) {
			return nil
		}
		return s.classify("Failed to look up refresh token", err)
	}

	if record.UserID != who.UserID {
		s.logger.Warn("Logout with foreign refresh token ignored",
			logger.Int64("user_id", who.UserID),
			logger.Int64("owner_id", record.UserID))
		return nil
	}

	if _, err := s.refresh.Revoke(ctx, refreshToken); err != nil {
		return s.classify("Failed to revoke refresh token", err)
	}

	s.logger.Info("User logged out", logger.Int64("user_id", who.UserID))
	return nil
}

func (s *Service) CurrentUser(ctx context.Context, who Identity) (*models.User, error) {
	user, err := s.users.GetByID(ctx, who.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, s.classify("Failed to load current user", err)
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, s.classify("Failed to list users", err)
	}
	return users, nil
}

func (s *Service) pair(access, refresh string) *TokenPair {
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}
}

// classify passes classified errors through and logs the rest as internal.
func (s *Service) classify(msg string, err error) error {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		s.logger.Error(msg, logger.Error(err))
	}
	return e
}
