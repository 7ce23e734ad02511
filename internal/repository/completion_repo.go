package repository

import (
	"context"
	"errors"
	"time"

	"bookworms/internal/domain"

	"github.com/jackc/pgx/v5"
)

type CompletionRepository struct {
	db DBTX
}

func NewCompletionRepository(db DBTX) *CompletionRepository {
	return &CompletionRepository{db: db}
}

const completionColumns = `id, user_id, task_id, completed, completed_at, penalty_paid, penalty_applied_at`

// Completion reads one row; forUpdate takes a row lock for the rest of the transaction.
func (r *CompletionRepository) Completion(ctx context.Context, userID, taskID int64, forUpdate bool) (*domain.TaskCompletion, error) {
	q := `SELECT ` + completionColumns + ` FROM task_completions WHERE user_id = $1 AND task_id = $2`
	if forUpdate {
		q += ` FOR UPDATE`
	}

	var c domain.TaskCompletion
	err := r.db.QueryRow(ctx, q, userID, taskID).Scan(
		&c.ID, &c.UserID, &c.TaskID, &c.Completed, &c.CompletedAt, &c.PenaltyPaid, &c.PenaltyAppliedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoSuchCompletion
		}
		return nil, err
	}
	return &c, nil
}

func (r *CompletionRepository) SaveCompletion(ctx context.Context, c *domain.TaskCompletion) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE task_completions
		SET completed = $1, completed_at = $2, penalty_paid = $3, penalty_applied_at = $4
		WHERE id = $5
	`, c.Completed, c.CompletedAt, c.PenaltyPaid, c.PenaltyAppliedAt, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoSuchCompletion
	}
	return nil
}

func (r *CompletionRepository) BackfillTask(ctx context.Context, taskID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO task_completions (user_id, task_id)
		SELECT u.id, $1 FROM users u
		ON CONFLICT (user_id, task_id) DO NOTHING
	`, taskID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *CompletionRepository) BackfillUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO task_completions (user_id, task_id)
		SELECT $1, t.id FROM tasks t
		ON CONFLICT (user_id, task_id) DO NOTHING
	`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *CompletionRepository) CompletedAfter(ctx context.Context, userID int64, date time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM task_completions c
		JOIN tasks t ON t.id = c.task_id
		WHERE c.user_id = $1 AND c.completed AND t.scheduled_date > $2
	`, userID, date).Scan(&n)
	return n, err
}

func (r *CompletionRepository) CountCompleted(ctx context.Context, taskID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM task_completions WHERE task_id = $1 AND completed`, taskID).Scan(&n)
	return n, err
}

func (r *CompletionRepository) ListCompletionsForTask(ctx context.Context, taskID int64) ([]domain.TaskCompletion, error) {
	rows, err := r.db.Query(ctx, `SELECT `+completionColumns+` FROM task_completions WHERE task_id = $1 ORDER BY user_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.TaskCompletion
	for rows.Next() {
		var c domain.TaskCompletion
		if err := rows.Scan(&c.ID, &c.UserID, &c.TaskID, &c.Completed, &c.CompletedAt, &c.PenaltyPaid, &c.PenaltyAppliedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *CompletionRepository) ListCompletionsForUser(ctx context.Context, userID int64) ([]domain.CompletionWithTask, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.user_id, c.task_id, c.completed, c.completed_at, c.penalty_paid, c.penalty_applied_at,
		       t.id, t.description, t.scheduled_date, t.created_at
		FROM task_completions c
		JOIN tasks t ON t.id = c.task_id
		WHERE c.user_id = $1
		ORDER BY t.scheduled_date
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.CompletionWithTask
	for rows.Next() {
		var c domain.CompletionWithTask
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.TaskID, &c.Completed, &c.CompletedAt, &c.PenaltyPaid, &c.PenaltyAppliedAt,
			&c.Task.ID, &c.Task.Description, &c.Task.ScheduledDate, &c.Task.CreatedAt,
		); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

const openPenalty = `c.completed = false AND c.penalty_paid = false AND c.penalty_applied_at IS NOT NULL`

func (r *CompletionRepository) ListDebtors(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE id IN (
			SELECT c.user_id FROM task_completions c
			JOIN tasks t ON t.id = c.task_id
			WHERE `+openPenalty+` AND t.scheduled_date < $1
		)
		ORDER BY id
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

func (r *CompletionRepository) HasOverduePenalty(ctx context.Context, userID int64, cutoff time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM task_completions c
			JOIN tasks t ON t.id = c.task_id
			WHERE c.user_id = $1 AND `+openPenalty+` AND t.scheduled_date < $2
		)
	`, userID, cutoff).Scan(&exists)
	return exists, err
}

func (r *CompletionRepository) SettlePenalties(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE task_completions c SET penalty_paid = true
		WHERE c.user_id = $1 AND `+openPenalty, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
