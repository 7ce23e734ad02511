// Package db opens the configured storage backend.
package db

import (
	"context"
	"fmt"
	"time"

	"bookworms/internal/domain"
	"bookworms/internal/logger"
	"bookworms/internal/repository"
	"bookworms/internal/repository/sqlite"
	"bookworms/internal/store"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect creates a pgx pool and checks it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool: %v", domain.ErrStoreUnavailable, err)
	}

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.Ping(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrStoreUnavailable, err)
	}

	logger.Info("database connected")
	return db, nil
}

// Open returns the backend for driver: "postgres" (dsn) or "sqlite" (path).
func Open(ctx context.Context, driver, dsn, sqlitePath string) (store.Backend, error) {
	switch driver {
	case "postgres", "":
		pool, err := Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return repository.NewBackend(pool), nil
	case "sqlite":
		b, err := sqlite.Open(ctx, sqlitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", "path", sqlitePath)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
