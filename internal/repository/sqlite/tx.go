package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bookworms/internal/domain"
	"bookworms/internal/store"
)

type sqliteTx struct {
	tx *sql.Tx
}

var _ store.Tx = (*sqliteTx)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// ---- tasks ----

const taskColumns = `id, description, scheduled_date, created_at`

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t               domain.Task
		date, createdAt string
	)
	if err := row.Scan(&t.ID, &t.Description, &date, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if t.ScheduledDate, err = parseDate(date); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *sqliteTx) oneTask(ctx context.Context, q string, args ...any) (*domain.Task, error) {
	t, err := scanTask(s.tx.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoSuchTask
	}
	return t, err
}

func (s *sqliteTx) TaskByID(ctx context.Context, id int64) (*domain.Task, error) {
	return s.oneTask(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
}

// LockTask needs no row lock: BEGIN IMMEDIATE already holds the write lock.
func (s *sqliteTx) LockTask(ctx context.Context, id int64, exclusive bool) (*domain.Task, error) {
	return s.TaskByID(ctx, id)
}

func (s *sqliteTx) TaskByDate(ctx context.Context, date time.Time) (*domain.Task, error) {
	return s.oneTask(ctx, `SELECT `+taskColumns+` FROM tasks WHERE scheduled_date = ?`, fmtDate(date))
}

func (s *sqliteTx) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY scheduled_date`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

func (s *sqliteTx) InsertTask(ctx context.Context, t *domain.Task) error {
	now := time.Now().UTC()
	res, err := s.tx.ExecContext(ctx,
		`INSERT INTO tasks (description, scheduled_date, created_at) VALUES (?, ?, ?)`,
		t.Description, fmtDate(t.ScheduledDate), fmtTime(now),
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateDate
	}
	if err != nil {
		return err
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	t.CreatedAt = now
	return nil
}

func (s *sqliteTx) UpdateTask(ctx context.Context, t *domain.Task) error {
	res, err := s.tx.ExecContext(ctx,
		`UPDATE tasks SET description = ?, scheduled_date = ? WHERE id = ?`,
		t.Description, fmtDate(t.ScheduledDate), t.ID,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateDate
	}
	return expectOne(res, err, domain.ErrNoSuchTask)
}

func (s *sqliteTx) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return expectOne(res, err, domain.ErrNoSuchTask)
}

func expectOne(res sql.Result, err error, missing error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

// ---- users ----

const userColumns = `id, external_id, name, current_streak, joined_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u        domain.User
		joinedAt string
	)
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Name, &u.CurrentStreak, &joinedAt); err != nil {
		return nil, err
	}
	var err error
	if u.JoinedAt, err = parseTime(joinedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *sqliteTx) oneUser(ctx context.Context, q string, args ...any) (*domain.User, error) {
	u, err := scanUser(s.tx.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoSuchUser
	}
	return u, err
}

func (s *sqliteTx) queryUsers(ctx context.Context, q string, args ...any) ([]domain.User, error) {
	rows, err := s.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

func (s *sqliteTx) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.oneUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *sqliteTx) LockUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.UserByID(ctx, id)
}

func (s *sqliteTx) UserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return s.oneUser(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
}

func (s *sqliteTx) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

func (s *sqliteTx) InsertUser(ctx context.Context, u *domain.User) error {
	if u.JoinedAt.IsZero() {
		u.JoinedAt = time.Now()
	}
	u.JoinedAt = u.JoinedAt.UTC()
	res, err := s.tx.ExecContext(ctx,
		`INSERT INTO users (external_id, name, current_streak, joined_at) VALUES (?, ?, 0, ?)`,
		u.ExternalID, u.Name, fmtTime(u.JoinedAt),
	)
	if err != nil {
		return err
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	u.CurrentStreak = 0
	return nil
}

func (s *sqliteTx) UpdateUserName(ctx context.Context, id int64, name string) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, id)
	return expectOne(res, err, domain.ErrNoSuchUser)
}

func (s *sqliteTx) SetStreak(ctx context.Context, id int64, streak int) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE users SET current_streak = ? WHERE id = ?`, streak, id)
	return expectOne(res, err, domain.ErrNoSuchUser)
}

func (s *sqliteTx) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return expectOne(res, err, domain.ErrNoSuchUser)
}

// ---- completions ----

const completionColumns = `c.id, c.user_id, c.task_id, c.completed, c.completed_at, c.penalty_paid, c.penalty_applied_at`

type completionRow struct {
	c                      domain.TaskCompletion
	completedAt, appliedAt sql.NullString
}

func (r *completionRow) dest() []any {
	return []any{&r.c.ID, &r.c.UserID, &r.c.TaskID, &r.c.Completed, &r.completedAt, &r.c.PenaltyPaid, &r.appliedAt}
}

func (r *completionRow) finish() (domain.TaskCompletion, error) {
	var err error
	if r.c.CompletedAt, err = parseTimePtr(r.completedAt); err != nil {
		return r.c, err
	}
	if r.c.PenaltyAppliedAt, err = parseTimePtr(r.appliedAt); err != nil {
		return r.c, err
	}
	return r.c, nil
}

// Completion ignores forUpdate: the write lock is already held from BEGIN IMMEDIATE.
func (s *sqliteTx) Completion(ctx context.Context, userID, taskID int64, forUpdate bool) (*domain.TaskCompletion, error) {
	var row completionRow
	err := s.tx.QueryRowContext(ctx,
		`SELECT `+completionColumns+` FROM task_completions c WHERE c.user_id = ? AND c.task_id = ?`,
		userID, taskID,
	).Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoSuchCompletion
	}
	if err != nil {
		return nil, err
	}
	c, err := row.finish()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *sqliteTx) SaveCompletion(ctx context.Context, c *domain.TaskCompletion) error {
	res, err := s.tx.ExecContext(ctx, `
		UPDATE task_completions
		SET completed = ?, completed_at = ?, penalty_paid = ?, penalty_applied_at = ?
		WHERE id = ?
	`, c.Completed, fmtTimePtr(c.CompletedAt), c.PenaltyPaid, fmtTimePtr(c.PenaltyAppliedAt), c.ID)
	return expectOne(res, err, domain.ErrNoSuchCompletion)
}

// The WHERE true disambiguates ON CONFLICT from a join constraint in SQLite's grammar.
func (s *sqliteTx) BackfillTask(ctx context.Context, taskID int64) (int64, error) {
	res, err := s.tx.ExecContext(ctx, `
		INSERT INTO task_completions (user_id, task_id)
		SELECT u.id, ? FROM users u WHERE true
		ON CONFLICT (user_id, task_id) DO NOTHING
	`, taskID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteTx) BackfillUser(ctx context.Context, userID int64) (int64, error) {
	res, err := s.tx.ExecContext(ctx, `
		INSERT INTO task_completions (user_id, task_id)
		SELECT ?, t.id FROM tasks t WHERE true
		ON CONFLICT (user_id, task_id) DO NOTHING
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteTx) CompletedAfter(ctx context.Context, userID int64, date time.Time) (int, error) {
	var n int
	err := s.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_completions c
		JOIN tasks t ON t.id = c.task_id
		WHERE c.user_id = ? AND c.completed = 1 AND t.scheduled_date > ?
	`, userID, fmtDate(date)).Scan(&n)
	return n, err
}

func (s *sqliteTx) CountCompleted(ctx context.Context, taskID int64) (int, error) {
	var n int
	err := s.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_completions WHERE task_id = ? AND completed = 1`, taskID).Scan(&n)
	return n, err
}

func (s *sqliteTx) ListCompletionsForTask(ctx context.Context, taskID int64) ([]domain.TaskCompletion, error) {
	rows, err := s.tx.QueryContext(ctx,
		`SELECT `+completionColumns+` FROM task_completions c WHERE c.task_id = ? ORDER BY c.user_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []domain.TaskCompletion
	for rows.Next() {
		var row completionRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		c, err := row.finish()
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *sqliteTx) ListCompletionsForUser(ctx context.Context, userID int64) ([]domain.CompletionWithTask, error) {
	rows, err := s.tx.QueryContext(ctx, `
		SELECT `+completionColumns+`, t.id, t.description, t.scheduled_date, t.created_at
		FROM task_completions c
		JOIN tasks t ON t.id = c.task_id
		WHERE c.user_id = ?
		ORDER BY t.scheduled_date
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []domain.CompletionWithTask
	for rows.Next() {
		var (
			row             completionRow
			task            domain.Task
			date, createdAt string
		)
		dest := append(row.dest(), &task.ID, &task.Description, &date, &createdAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		c, err := row.finish()
		if err != nil {
			return nil, err
		}
		if task.ScheduledDate, err = parseDate(date); err != nil {
			return nil, err
		}
		if task.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		res = append(res, domain.CompletionWithTask{TaskCompletion: c, Task: task})
	}
	return res, rows.Err()
}

const openPenalty = `c.completed = 0 AND c.penalty_paid = 0 AND c.penalty_applied_at IS NOT NULL`

func (s *sqliteTx) ListDebtors(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	return s.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE id IN (
			SELECT c.user_id FROM task_completions c
			JOIN tasks t ON t.id = c.task_id
			WHERE `+openPenalty+` AND t.scheduled_date < ?
		)
		ORDER BY id
	`, fmtDate(cutoff))
}

func (s *sqliteTx) HasOverduePenalty(ctx context.Context, userID int64, cutoff time.Time) (bool, error) {
	var exists bool
	err := s.tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM task_completions c
			JOIN tasks t ON t.id = c.task_id
			WHERE c.user_id = ? AND `+openPenalty+` AND t.scheduled_date < ?
		)
	`, userID, fmtDate(cutoff)).Scan(&exists)
	return exists, err
}

func (s *sqliteTx) SettlePenalties(ctx context.Context, userID int64) (int64, error) {
	res, err := s.tx.ExecContext(ctx, `
		UPDATE task_completions SET penalty_paid = 1
		WHERE user_id = ? AND completed = 0 AND penalty_paid = 0 AND penalty_applied_at IS NOT NULL
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
