package repository

import (
	"context"
	"errors"

	"bookworms/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, external_id, name, current_streak, joined_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Name, &u.CurrentStreak, &u.JoinedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoSuchUser
		}
		return nil, err
	}
	return &u, nil
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.ExternalID, &u.Name, &u.CurrentStreak, &u.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r *UserRepository) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepository) LockUser(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

func (r *UserRepository) UserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID))
}

func (r *UserRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

func (r *UserRepository) InsertUser(ctx context.Context, u *domain.User) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO users (external_id, name, joined_at) VALUES ($1, $2, $3) RETURNING id, current_streak`,
		u.ExternalID, u.Name, u.JoinedAt,
	).Scan(&u.ID, &u.CurrentStreak)
}

func (r *UserRepository) UpdateUserName(ctx context.Context, id int64, name string) error {
	return r.expectOne(r.db.Exec(ctx, `UPDATE users SET name = $1 WHERE id = $2`, name, id))
}

func (r *UserRepository) SetStreak(ctx context.Context, id int64, streak int) error {
	return r.expectOne(r.db.Exec(ctx, `UPDATE users SET current_streak = $1 WHERE id = $2`, streak, id))
}

// DeleteUser removes the user; completion rows go with it (ON DELETE CASCADE).
func (r *UserRepository) DeleteUser(ctx context.Context, id int64) error {
	return r.expectOne(r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id))
}

func (r *UserRepository) expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoSuchUser
	}
	return nil
}
