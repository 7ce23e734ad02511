// Package repository is the PostgreSQL backend of the entity store.
package repository

import (
	"context"
	"errors"
	"fmt"

	"bookworms/internal/domain"
	"bookworms/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Backend runs store transactions on a pgx pool.
type Backend struct {
	db *pgxpool.Pool
}

// NewBackend wraps an open pool.
func NewBackend(db *pgxpool.Pool) *Backend {
	return &Backend{db: db}
}

type pgTx struct {
	*TaskRepository
	*UserRepository
	*CompletionRepository
}

func newTx(db DBTX) *pgTx {
	return &pgTx{
		TaskRepository:       NewTaskRepository(db),
		UserRepository:       NewUserRepository(db),
		CompletionRepository: NewCompletionRepository(db),
	}
}

// InTx implements store.Backend.
func (b *Backend) InTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: begin: %v", domain.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(newTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Ping implements store.Backend.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close implements store.Backend.
func (b *Backend) Close() { b.db.Close() }

var _ store.Backend = (*Backend)(nil)
var _ store.Tx = (*pgTx)(nil)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}
