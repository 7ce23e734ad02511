package repository

import (
	"context"
	"errors"
	"time"

	"bookworms/internal/domain"

	"github.com/jackc/pgx/v5"
)

type TaskRepository struct {
	db DBTX
}

func NewTaskRepository(db DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, description, scheduled_date, created_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	if err := row.Scan(&t.ID, &t.Description, &t.ScheduledDate, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoSuchTask
		}
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepository) TaskByID(ctx context.Context, id int64) (*domain.Task, error) {
	return scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

func (r *TaskRepository) LockTask(ctx context.Context, id int64, exclusive bool) (*domain.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR SHARE`
	if exclusive {
		q = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR UPDATE`
	}
	return scanTask(r.db.QueryRow(ctx, q, id))
}

func (r *TaskRepository) TaskByDate(ctx context.Context, date time.Time) (*domain.Task, error) {
	return scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE scheduled_date = $1`, date))
}

func (r *TaskRepository) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.db.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY scheduled_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.Description, &t.ScheduledDate, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *TaskRepository) InsertTask(ctx context.Context, t *domain.Task) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO tasks (description, scheduled_date) VALUES ($1, $2) RETURNING id, created_at`,
		t.Description, t.ScheduledDate,
	).Scan(&t.ID, &t.CreatedAt)
	if isUniqueViolation(err, "tasks_scheduled_date_key") {
		return domain.ErrDuplicateDate
	}
	return err
}

func (r *TaskRepository) UpdateTask(ctx context.Context, t *domain.Task) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tasks SET description = $1, scheduled_date = $2 WHERE id = $3`,
		t.Description, t.ScheduledDate, t.ID,
	)
	if isUniqueViolation(err, "tasks_scheduled_date_key") {
		return domain.ErrDuplicateDate
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoSuchTask
	}
	return nil
}

func (r *TaskRepository) DeleteTask(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoSuchTask
	}
	return nil
}
