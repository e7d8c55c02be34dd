package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AtoyanMikhail/todoauth/internal/apperr"
	"github.com/AtoyanMikhail/todoauth/internal/cache"
	"github.com/AtoyanMikhail/todoauth/internal/logger"
	"github.com/AtoyanMikhail/todoauth/internal/repository"
	"github.com/AtoyanMikhail/todoauth/internal/repository/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testAccessTTL = 30 * time.Minute

type serviceFixture struct {
	svc   *Service
	clock *testClock
	codec *TokenCodec
	store *repository.Memory
}

func newServiceFixture(t *testing.T, guard cache.LoginGuard) *serviceFixture {
	t.Helper()
	clock := newTestClock()
	store := repository.NewMemory()
	codec := newTestCodec(t, clock)

	svc, err := NewService(
		store.Users(),
		NewBcryptHasher(bcrypt.MinCost),
		codec,
		NewRefreshTokenStore(store.RefreshTokens(), testRefreshTTL, clock.Now),
		guard,
		testAccessTTL,
		logger.Nop(),
	)
	require.NoError(t, err)

	return &serviceFixture{svc: svc, clock: clock, codec: codec, store: store}
}

func (f *serviceFixture) register(t *testing.T, username, password string) *models.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), username, username+"@x.com", password)
	require.NoError(t, err)
	return u
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)

	u, err := f.svc.Register(ctx, "alice", "a@x.com", "pw123")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.NotEqual(t, "pw123", u.PasswordHash)

	tests := []struct {
		name     string
		username string
		email    string
		password string
		wantKind apperr.Kind
	}{
		{name: "duplicate username", username: "alice", email: "other@x.com", password: "pw", wantKind: apperr.KindDuplicateIdentity},
		{name: "duplicate email", username: "alice2", email: "a@x.com", password: "pw", wantKind: apperr.KindDuplicateIdentity},
		{name: "password too long", username: "carol", email: "c@x.com", password: string(make([]byte, MaxPasswordBytes+1)), wantKind: apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.username, tt.email, tt.password)
			assert.Equal(t, tt.wantKind, apperr.From(err).Kind)
		})
	}
}

func TestService_AuthenticateIsUniform(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	f.register(t, "alice", "pw123")

	u, err := f.svc.Authenticate(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, wrongPassword := f.svc.Authenticate(ctx, "alice", "nope")
	_, unknownUser := f.svc.Authenticate(ctx, "mallory", "pw123")

	assert.ErrorIs(t, wrongPassword, apperr.ErrAuthFailed)
	assert.Equal(t, wrongPassword, unknownUser)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestService_AuthenticateRejectsOverlongPassword(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	pw := strings.Repeat("a", MaxPasswordBytes)
	f.register(t, "alice", pw)

	_, err := f.svc.Authenticate(ctx, "alice", pw)
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, "alice", pw+"DIFFERENT-SUFFIX")
	assert.Equal(t, apperr.ErrAuthFailed, err)

	pair, err := f.svc.Login(ctx, "alice", pw+"X", "10.0.0.1")
	assert.Nil(t, pair)
	assert.ErrorIs(t, err, apperr.ErrAuthFailed)
}

func TestService_LoginIssuesPair(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	alice := f.register(t, "alice", "pw123")

	pair, err := f.svc.Login(ctx, "alice", "pw123", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, TokenTypeBearer, pair.TokenType)
	assert.Equal(t, int64(1800), pair.ExpiresIn)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := f.codec.Decode(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: alice.ID, Username: "alice"}, claims.Identity())

	_, err = f.svc.Login(ctx, "alice", "wrong", "10.0.0.1")
	assert.ErrorIs(t, err, apperr.ErrAuthFailed)
}

func TestService_RefreshRotatesAndRejectsReplay(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	f.register(t, "alice", "pw123")

	pair, err := f.svc.Login(ctx, "alice", "pw123", "10.0.0.1")
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	_, err = f.codec.Decode(next.AccessToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrRefreshInvalid, "a rotated token is dead immediately")

	_, err = f.svc.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err, "the successor keeps the session alive")
}

func TestService_RefreshRejects(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	f.register(t, "alice", "pw123")

	pair, err := f.svc.Login(ctx, "alice", "pw123", "10.0.0.1")
	require.NoError(t, err)

	orphans := NewRefreshTokenStore(f.store.RefreshTokens(), testRefreshTTL, f.clock.Now)
	orphan, _, err := orphans.Create(ctx, 999)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, orphan)
	assert.ErrorIs(t, err, apperr.ErrRefreshInvalid, "owner no longer exists")

	_, err = f.svc.Refresh(ctx, "forged")
	assert.ErrorIs(t, err, apperr.ErrRefreshInvalid)

	f.clock.Advance(testRefreshTTL)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrRefreshInvalid, "expired")
}

func TestService_ConcurrentRefreshHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	f.register(t, "alice", "pw123")

	pair, err := f.svc.Login(ctx, "alice", "pw123", "10.0.0.1")
	require.NoError(t, err)

	const callers = 16
	var (
		wg         sync.WaitGroup
		winners    atomic.Int32
		successors = make(chan string, callers)
		start      = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			next, err := f.svc.Refresh(ctx, pair.RefreshToken)
			if err != nil {
				assert.ErrorIs(t, err, apperr.ErrRefreshInvalid)
				return
			}
			winners.Add(1)
			successors <- next.RefreshToken
		}()
	}
	close(start)
	wg.Wait()
	close(successors)

	assert.Equal(t, int32(1), winners.Load())
	for s := range successors {
		_, err := f.svc.Refresh(ctx, s)
		assert.NoError(t, err)
	}
}

func TestService_LogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	alice := f.register(t, "alice", "pw123")
	bob := f.register(t, "bob", "pw456")
	aliceID := Identity{UserID: alice.ID, Username: alice.Username}
	bobID := Identity{UserID: bob.ID, Username: bob.Username}

	pair, err := f.svc.Login(ctx, "alice", "pw123", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, bobID))
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err, "a foreign logout must not revoke the token")

	pair, err = f.svc.Login(ctx, "alice", "pw123", "10.0.0.1")
	require.NoError(t, err)

	assert.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, aliceID))
	assert.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, aliceID))
	assert.NoError(t, f.svc.Logout(ctx, "unknown", aliceID))
	assert.NoError(t, f.svc.Logout(ctx, "", aliceID))

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrRefreshInvalid)
}

func TestService_CurrentUserAndList(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)
	alice := f.register(t, "alice", "pw123")
	f.register(t, "bob", "pw456")

	u, err := f.svc.CurrentUser(ctx, Identity{UserID: alice.ID, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", u.Email)

	_, err = f.svc.CurrentUser(ctx, Identity{UserID: 404, Username: "ghost"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	users, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestService_IssueSessionIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := repository.NewMemory()

	svc, err := NewService(
		store.Users(),
		NewBcryptHasher(bcrypt.MinCost),
		newTestCodec(t, clock),
		NewRefreshTokenStore(brokenTokens{err: errors.New("disk full")}, testRefreshTTL, clock.Now),
		nil,
		testAccessTTL,
		logger.Nop(),
	)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "a@x.com", "pw123")
	require.NoError(t, err)

	pair, err := svc.Login(ctx, "alice", "pw123", "10.0.0.1")
	assert.Nil(t, pair)
	assert.Equal(t, apperr.KindInternal, apperr.From(err).Kind)
}

type stubGuard struct {
	mu       sync.Mutex
	blocked  bool
	err      error
	failures int
	resets   int
}

func (g *stubGuard) Allow(context.Context, string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.blocked, g.err
}

func (g *stubGuard) RegisterFailure(context.Context, string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	return int64(g.failures), g.err
}

func (g *stubGuard) Reset(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resets++
	return g.err
}

func TestService_LoginThrottling(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked before password check", func(t *testing.T) {
		guard := &stubGuard{blocked: true}
		f := newServiceFixture(t, guard)
		f.register(t, "alice", "pw123")

		_, err := f.svc.Login(ctx, "alice", "pw123", "10.0.0.1")
		assert.ErrorIs(t, err, apperr.ErrTooManyAttempts)
		assert.Zero(t, guard.failures)
	})

	t.Run("failures counted and success resets", func(t *testing.T) {
		guard := &stubGuard{}
		f := newServiceFixture(t, guard)
		f.register(t, "alice", "pw123")

		_, err := f.svc.Login(ctx, "alice", "wrong", "10.0.0.1")
		assert.ErrorIs(t, err, apperr.ErrAuthFailed)
		_, err = f.svc.Login(ctx, "nobody", "wrong", "10.0.0.1")
		assert.ErrorIs(t, err, apperr.ErrAuthFailed)
		assert.Equal(t, 2, guard.failures)

		_, err = f.svc.Login(ctx, "alice", "pw123", "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, 1, guard.resets)
	})

	t.Run("guard outage fails open", func(t *testing.T) {
		guard := &stubGuard{blocked: true, err: errors.New("redis down")}
		f := newServiceFixture(t, guard)
		f.register(t, "alice", "pw123")

		_, err := f.svc.Login(ctx, "alice", "pw123", "10.0.0.1")
		assert.NoError(t, err)
	})
}
