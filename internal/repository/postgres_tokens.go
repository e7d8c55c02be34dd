package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtoyanMikhail/todoauth/internal/logger"
	"github.com/AtoyanMikhail/todoauth/internal/repository/models"
	"github.com/jmoiron/sqlx"
)

type refreshTokenRepo struct {
	db *sqlx.DB
	l  logger.Logger
}

const refreshTokenColumns = `id, token_hash, user_id, expires_at, revoked, revoked_at, created_at, updated_at`

func (r *refreshTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	return r.create(ctx, r.db, token)
}

func (r *refreshTokenRepo) create(ctx context.Context, q dbtx, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at, updated_at)
		VALUES (:token_hash, :user_id, :expires_at, :created_at, :updated_at)
		RETURNING id`

	stmt, err := q.PrepareNamedContext(ctx, query)
	if err != nil {
		r.l.Error("Failed to prepare query", logger.Error(err))
		return fmt.Errorf("failed to prepare query: %w", err)
	}
	defer stmt.Close()

	if err = stmt.QueryRowxContext(ctx, token).Scan(&token.ID); err != nil {
		r.l.Error("Failed to execute insert query", logger.Error(err))
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	r.l.Info("Refresh token created", logger.Int64("id", token.ID), logger.Int64("user_id", token.UserID))
	return nil
}

func (r *refreshTokenRepo) FindUsable(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error) {
	query := `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1 AND revoked = false AND expires_at > $2`

	token := &models.RefreshToken{}
	if err := r.db.GetContext(ctx, token, query, tokenHash, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return token, nil
}

func (r *refreshTokenRepo) Revoke(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = COALESCE(revoked_at, $2), updated_at = $2
		WHERE token_hash = $1`

	result, err := r.db.ExecContext(ctx, query, tokenHash, now)
	if err != nil {
		r.l.Error("Failed to revoke refresh token", logger.Error(err))
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Rotate relies on the conditional UPDATE: under concurrent rotation of the same
// token, Postgres re-evaluates the WHERE clause after the first writer commits, so
// only one caller sees an affected row.
func (r *refreshTokenRepo) Rotate(ctx context.Context, oldHash string, next *models.RefreshToken, now time.Time) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			UPDATE refresh_tokens
			SET revoked = true, revoked_at = $2, updated_at = $2
			WHERE token_hash = $1 AND revoked = false AND expires_at > $2`

		result, err := tx.ExecContext(ctx, query, oldHash, now)
		if err != nil {
			r.l.Error("Failed to revoke rotated refresh token", logger.Error(err))
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected != 1 {
			r.l.Warn("Refresh token not usable for rotation", logger.Int64("user_id", next.UserID))
			return models.ErrTokenNotUsable
		}

		return r.create(ctx, tx, next)
	})
}
