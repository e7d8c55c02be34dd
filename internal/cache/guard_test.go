package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/AtoyanMikhail/todoauth/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Cache for testing the login guard error paths
type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockCache) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockCache) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestLoginGuard_BlocksAfterMaxAttempts(t *testing.T) {
	cache, mr, cleanup := SetupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	guard := NewLoginGuard(cache, 3, time.Minute, logger.Nop())
	key := AttemptKey("Alice", "10.0.0.1")

	for i := 0; i < 3; i++ {
		allowed, err := guard.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d should be allowed", i+1)

		_, err = guard.RegisterFailure(ctx, key)
		require.NoError(t, err)
	}

	allowed, err := guard.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, allowed)

	other, err := guard.Allow(ctx, AttemptKey("alice", "10.0.0.2"))
	require.NoError(t, err)
	assert.True(t, other, "a different address is tracked separately")

	mr.FastForward(time.Minute + time.Second)
	allowed, err = guard.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, allowed, "window elapsed")
}

func TestLoginGuard_Reset(t *testing.T) {
	cache, _, cleanup := SetupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	guard := NewLoginGuard(cache, 1, time.Minute, logger.Nop())

	_, err := guard.RegisterFailure(ctx, "k")
	require.NoError(t, err)
	allowed, err := guard.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, guard.Reset(ctx, "k"))
	allowed, err = guard.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLoginGuard_CacheErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		setupMock func(*mockCache)
		run       func(LoginGuard) error
		errMsg    string
	}{
		{
			name: "get fails",
			setupMock: func(m *mockCache) {
				m.On("Get", ctx, LoginAttemptPrefix+"k").Return("", fmt.Errorf("connection refused"))
			},
			run: func(g LoginGuard) error {
				_, err := g.Allow(ctx, "k")
				return err
			},
			errMsg: "failed to get login attempts",
		},
		{
			name: "garbage counter",
			setupMock: func(m *mockCache) {
				m.On("Get", ctx, LoginAttemptPrefix+"k").Return("many", nil)
			},
			run: func(g LoginGuard) error {
				_, err := g.Allow(ctx, "k")
				return err
			},
			errMsg: "failed to parse login attempts count",
		},
		{
			name: "increment fails",
			setupMock: func(m *mockCache) {
				m.On("IncrementWithTTL", ctx, LoginAttemptPrefix+"k", time.Minute).Return(int64(0), fmt.Errorf("timeout"))
			},
			run: func(g LoginGuard) error {
				_, err := g.RegisterFailure(ctx, "k")
				return err
			},
			errMsg: "failed to register login failure",
		},
		{
			name: "delete fails",
			setupMock: func(m *mockCache) {
				m.On("Delete", ctx, LoginAttemptPrefix+"k").Return(fmt.Errorf("timeout"))
			},
			run: func(g LoginGuard) error {
				return g.Reset(ctx, "k")
			},
			errMsg: "failed to reset login attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockCache{}
			tt.setupMock(m)
			guard := NewLoginGuard(m, 3, time.Minute, logger.Nop())

			err := tt.run(guard)

			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			m.AssertExpectations(t)
		})
	}
}

func TestNopLoginGuard(t *testing.T) {
	ctx := context.Background()
	g := NopLoginGuard()

	for i := 0; i < 100; i++ {
		_, err := g.RegisterFailure(ctx, "k")
		require.NoError(t, err)
	}
	allowed, err := g.Allow(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, g.Reset(ctx, "k"))
}
