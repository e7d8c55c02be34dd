package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtoyanMikhail/todoauth/internal/auth"
	"github.com/AtoyanMikhail/todoauth/internal/cache"
	"github.com/AtoyanMikhail/todoauth/internal/config"
	"github.com/AtoyanMikhail/todoauth/internal/handler"
	"github.com/AtoyanMikhail/todoauth/internal/logger"
	"github.com/AtoyanMikhail/todoauth/internal/repository"
)

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatal(err.Error())
	}

	lvl, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatal(err.Error())
	}
	logger.Initialize(lvl)
	l := logger.Global()
	defer func() { _ = l.Sync() }()

	if err := run(cfg, l); err != nil {
		l.Fatal("Server stopped with error", logger.Error(err))
	}
}

func run(cfg *config.Config, l logger.Logger) error {
	if cfg.JWT.Secret == config.DevSecret {
		l.Warn("Using development signing secret, set JWT_SECRET before deploying")
	}

	store, err := openStore(cfg.Database, l)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	checks := map[string]handler.Pinger{"store": store}

	guard := cache.NopLoginGuard()
	if cfg.Redis.Enabled {
		c, err := cache.NewRedisCache(cfg.Redis, l)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		guard = cache.NewLoginGuard(c, cfg.Login.MaxAttempts, cfg.Login.AttemptWindow.Std(), l)
		checks["redis"] = c
	}

	codec, err := auth.NewTokenCodec([]byte(cfg.JWT.Secret), cfg.JWT.Algorithm, nil)
	if err != nil {
		return err
	}

	svc, err := auth.NewService(
		store.Users(),
		auth.NewBcryptHasher(cfg.JWT.BcryptCost),
		codec,
		auth.NewRefreshTokenStore(store.RefreshTokens(), cfg.JWT.RefreshTTL(), nil),
		guard,
		cfg.JWT.AccessTTL(),
		l,
	)
	if err != nil {
		return err
	}

	h := handler.New(svc, auth.NewGate(codec), checks, l)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	return serve(srv, cfg.Server.ShutdownTimeout.Std(), l)
}

func openStore(cfg config.DatabaseConfig, l logger.Logger) (repository.Store, error) {
	if cfg.Driver == config.DriverMemory {
		l.Warn("Using in-memory store, data is lost on restart")
		return repository.NewMemory(), nil
	}

	pg, err := repository.NewPostgres(cfg, l)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := pg.RunMigrations(); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return pg, nil
}

func serve(srv *http.Server, shutdownTimeout time.Duration, l logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		l.Info("HTTP server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		l.Info("Shutting down", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
