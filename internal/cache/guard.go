package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AtoyanMikhail/todoauth/internal/logger"
)

type loginGuard struct {
	cache       Cache
	maxAttempts int64
	window      time.Duration
	logger      logger.Logger
}

// NewLoginGuard returns a LoginGuard that blocks a key once maxAttempts failures
// were recorded within window. Every failure restarts the window.
func NewLoginGuard(cache Cache, maxAttempts int, window time.Duration, l logger.Logger) LoginGuard {
	return &loginGuard{
		cache:       cache,
		maxAttempts: int64(maxAttempts),
		window:      window,
		logger:      l,
	}
}

// AttemptKey builds the throttling key for a username and remote address.
func AttemptKey(username, remoteIP string) string {
	return strings.ToLower(username) + "|" + remoteIP
}

func (g *loginGuard) Allow(ctx context.Context, key string) (bool, error) {
	val, err := g.cache.Get(ctx, LoginAttemptPrefix+key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("failed to get login attempts: %w", err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		g.logger.Error("Failed to parse login attempts count",
			logger.String("value", val),
			logger.Error(err))
		return false, fmt.Errorf("failed to parse login attempts count: %w", err)
	}

	return count < g.maxAttempts, nil
}

func (g *loginGuard) RegisterFailure(ctx context.Context, key string) (int64, error) {
	count, err := g.cache.IncrementWithTTL(ctx, LoginAttemptPrefix+key, g.window)
	if err != nil {
		return 0, fmt.Errorf("failed to register login failure: %w", err)
	}

	if count >= g.maxAttempts {
		g.logger.Warn("Login attempts exhausted",
			logger.Int64("attempts", count),
			logger.Duration("window", g.window))
	}

	return count, nil
}

func (g *loginGuard) Reset(ctx context.Context, key string) error {
	if err := g.cache.Delete(ctx, LoginAttemptPrefix+key); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

type nopGuard struct{}

// NopLoginGuard never throttles. Used when Redis is disabled.
func NopLoginGuard() LoginGuard { return nopGuard{} }

func (nopGuard) Allow(context.Context, string) (bool, error)            { return true, nil }
func (nopGuard) RegisterFailure(context.Context, string) (int64, error) { return 0, nil }
func (nopGuard) Reset(context.Context, string) error                    { return nil }
