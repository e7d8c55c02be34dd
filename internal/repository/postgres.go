package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/AtoyanMikhail/todoauth/internal/config"
	"github.com/AtoyanMikhail/todoauth/internal/logger"
	"github.com/AtoyanMikhail/todoauth/internal/repository/migrations"
	"github.com/AtoyanMikhail/todoauth/internal/repository/models"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

// dbtx is satisfied by both *sqlx.DB and *sqlx.Tx.
type dbtx interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	PrepareNamedContext(ctx context.Context, query string) (*sqlx.NamedStmt, error)
}

// Postgres is the production Store backed by sqlx over lib/pq.
type Postgres struct {
	db     *sqlx.DB
	l      logger.Logger
	users  *userRepo
	tokens *refreshTokenRepo
}

func NewPostgres(cfg config.DatabaseConfig, l logger.Logger) (*Postgres, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open db connection: %w", err)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not establish db connection: %w", err)
	}

	l.Info("Postgres connection established",
		logger.String("host", cfg.Host),
		logger.String("db", cfg.DBName))

	return newPostgres(db, l), nil
}

func newPostgres(db *sqlx.DB, l logger.Logger) *Postgres {
	return &Postgres{
		db:     db,
		l:      l,
		users:  &userRepo{db: db, l: l},
		tokens: &refreshTokenRepo{db: db, l: l},
	}
}

func (p *Postgres) Users() models.UserRepository {
	return p.users
}

func (p *Postgres) RefreshTokens() models.RefreshTokenRepository {
	return p.tokens
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// RunMigrations applies the embedded schema migrations.
func (p *Postgres) RunMigrations() error {
	driver, err := postgres.WithInstance(p.db.DB, &postgres.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	p.l.Info("Database migrations applied")
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling back on
// error or panic. Panics are rethrown.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
