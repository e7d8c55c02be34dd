package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AtoyanMikhail/todoauth/internal/repository/models"
)

// Memory is a thread-safe in-memory Store for local development and tests.
// Every operation holds the store mutex for its whole duration, so Rotate is atomic.
type Memory struct {
	mu sync.RWMutex

	nextUserID  int64
	nextTokenID int64

	usersByID       map[int64]*models.User
	usersByUsername map[string]*models.User
	usersByEmail    map[string]*models.User

	tokensByHash map[string]*models.RefreshToken

	users  *memoryUsers
	tokens *memoryTokens
}

func NewMemory() *Memory {
	m := &Memory{
		usersByID:       make(map[int64]*models.User),
		usersByUsername: make(map[string]*models.User),
		usersByEmail:    make(map[string]*models.User),
		tokensByHash:    make(map[string]*models.RefreshToken),
	}
	m.users = &memoryUsers{m: m}
	m.tokens = &memoryTokens{m: m}
	return m
}

func (m *Memory) Users() models.UserRepository {
	return m.users
}

func (m *Memory) RefreshTokens() models.RefreshTokenRepository {
	return m.tokens
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// ---------- Users ----------

type memoryUsers struct{ m *Memory }

func (r *memoryUsers) Create(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usersByUsername[u.Username]; exists {
		return fmt.Errorf("user %q: %w", u.Username, models.ErrDuplicate)
	}
	if _, exists := m.usersByEmail[u.Email]; exists {
		return fmt.Errorf("email %q: %w", u.Email, models.ErrDuplicate)
	}

	m.nextUserID++
	u.ID = m.nextUserID
	u.CreatedAt = time.Now().UTC()

	// store a copy; callers get copies via getters
	cp := *u
	m.usersByID[cp.ID] = &cp
	m.usersByUsername[cp.Username] = &cp
	m.usersByEmail[cp.Email] = &cp
	return nil
}

func (r *memoryUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	u, ok := r.m.usersByUsername[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, models.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *memoryUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	u, ok := r.m.usersByID[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *memoryUsers) List(ctx context.Context) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	out := make([]*models.User, 0, len(r.m.usersByID))
	for _, u := range r.m.usersByID {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------- Refresh tokens ----------

type memoryTokens struct{ m *Memory }

func (r *memoryTokens) Create(ctx context.Context, token *models.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	return r.createLocked(token)
}

func (r *memoryTokens) createLocked(token *models.RefreshToken) error {
	if _, exists := r.m.tokensByHash[token.TokenHash]; exists {
		return fmt.Errorf("refresh token: %w", models.ErrDuplicate)
	}

	r.m.nextTokenID++
	token.ID = r.m.nextTokenID
	cp := *token
	r.m.tokensByHash[cp.TokenHash] = &cp
	return nil
}

func (r *memoryTokens) FindUsable(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	t, ok := r.m.tokensByHash[tokenHash]
	if !ok || !t.Usable(now) {
		return nil, models.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memoryTokens) Revoke(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	t, ok := r.m.tokensByHash[tokenHash]
	if !ok {
		return false, nil
	}
	revokeLocked(t, now)
	return true, nil
}

func (r *memoryTokens) Rotate(ctx context.Context, oldHash string, next *models.RefreshToken, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	old, ok := r.m.tokensByHash[oldHash]
	if !ok || !old.Usable(now) {
		return models.ErrTokenNotUsable
	}
	if _, exists := r.m.tokensByHash[next.TokenHash]; exists {
		return fmt.Errorf("refresh token: %w", models.ErrDuplicate)
	}

	revokeLocked(old, now)
	return r.createLocked(next)
}

func revokeLocked(t *models.RefreshToken, now time.Time) {
	if !t.RevokedAt.Valid {
		t.RevokedAt = sql.NullTime{Time: now, Valid: true}
	}
	t.Revoked = true
	t.UpdatedAt = now
}
