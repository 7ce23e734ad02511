package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookworms/internal/calendar"
	"bookworms/internal/domain"
	"bookworms/internal/streak"
)

// EntityStore implements the task, user and completion operations on top of a Backend.
// Every exported method is one transaction.
type EntityStore struct {
	backend Backend
	cal     *calendar.Calendar
}

// New creates an entity store.
func New(backend Backend, cal *calendar.Calendar) *EntityStore {
	return &EntityStore{backend: backend, cal: cal}
}

// Calendar returns the calendar used to decide "today".
func (s *EntityStore) Calendar() *calendar.Calendar { return s.cal }

// Ping checks the backend connection.
func (s *EntityStore) Ping(ctx context.Context) error { return s.backend.Ping(ctx) }

// ---- tasks ----

// CreateTask schedules a task and backfills a pending row for every user.
func (s *EntityStore) CreateTask(ctx context.Context, date time.Time, description string) (*domain.Task, error) {
	date = calendar.Normalize(date)
	description = strings.TrimSpace(description)
	if s.cal.IsPast(date) {
		return nil, domain.ErrPastDate
	}

	var task *domain.Task
	err := s.backend.InTx(ctx, func(tx Tx) error {
		if _, err := tx.TaskByDate(ctx, date); err == nil {
			return domain.ErrDuplicateDate
		} else if !errors.Is(err, domain.ErrNoSuchTask) {
			return err
		}

		t := &domain.Task{Description: description, ScheduledDate: date}
		if err := tx.InsertTask(ctx, t); err != nil {
			return err
		}
		if _, err := tx.BackfillTask(ctx, t.ID); err != nil {
			return fmt.Errorf("backfill task %d: %w", t.ID, err)
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask changes a task's date and description. Past tasks are immutable.
func (s *EntityStore) UpdateTask(ctx context.Context, id int64, date time.Time, description string) (*domain.Task, error) {
	date = calendar.Normalize(date)
	description = strings.TrimSpace(description)
	if s.cal.IsPast(date) {
		return nil, domain.ErrPastDate
	}

	var task *domain.Task
	err := s.backend.InTx(ctx, func(tx Tx) error {
		t, err := tx.LockTask(ctx, id, true)
		if err != nil {
			return err
		}
		if s.cal.IsPast(t.ScheduledDate) {
			return domain.ErrPastDate
		}
		if !t.ScheduledDate.Equal(date) {
			// streaks already count the completed day
			if err := noCompletions(ctx, tx, t.ID); err != nil {
				return err
			}
			other, err := tx.TaskByDate(ctx, date)
			switch {
			case err == nil && other.ID != t.ID:
				return domain.ErrDuplicateDate
			case err != nil && !errors.Is(err, domain.ErrNoSuchTask):
				return err
			}
		}

		t.ScheduledDate = date
		t.Description = description
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task and its completion rows. Past tasks are immutable and
// a task somebody has completed is kept: their streak already counts that day.
func (s *EntityStore) DeleteTask(ctx context.Context, id int64) (*domain.Task, error) {
	var task *domain.Task
	err := s.backend.InTx(ctx, func(tx Tx) error {
		t, err := tx.LockTask(ctx, id, true)
		if err != nil {
			return err
		}
		if s.cal.IsPast(t.ScheduledDate) {
			return domain.ErrPastDate
		}
		if err := noCompletions(ctx, tx, t.ID); err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, id); err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func noCompletions(ctx context.Context, tx Tx, taskID int64) error {
	n, err := tx.CountCompleted(ctx, taskID)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrTaskHasProgress
	}
	return nil
}

// FindTaskForDate returns the task scheduled on date or ErrNoSuchTask.
func (s *EntityStore) FindTaskForDate(ctx context.Context, date time.Time) (*domain.Task, error) {
	var task *domain.Task
	err := s.backend.InTx(ctx, func(tx Tx) error {
		t, err := tx.TaskByDate(ctx, calendar.Normalize(date))
		task = t
		return err
	})
	return task, err
}

// FindTask returns a task by id.
func (s *EntityStore) FindTask(ctx context.Context, id int64) (*domain.Task, error) {
	var task *domain.Task
	err := s.backend.InTx(ctx, func(tx Tx) error {
		t, err := tx.TaskByID(ctx, id)
		task = t
		return err
	})
	return task, err
}

// ListTasks returns all tasks ordered by date.
func (s *EntityStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	err := s.backend.InTx(ctx, func(tx Tx) error {
		var err error
		tasks, err = tx.ListTasks(ctx)
		return err
	})
	return tasks, err
}

// ---- users ----

// UpsertUser creates the user (with backfill) or renames an existing one.
// The streak is never touched.
func (s *EntityStore) UpsertUser(ctx context.Context, externalID, name string) (*domain.User, error) {
	var user *domain.User
	err := s.backend.InTx(ctx, func(tx Tx) error {
		u, created, err := ensureUser(ctx, tx, externalID, name, s.cal.Now().UTC())
		if err != nil {
			return err
		}
		if !created && name != "" && u.Name != name {
			if err := tx.UpdateUserName(ctx, u.ID, name); err != nil {
				return err
			}
			u.Name = name
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureMember registers a member if unknown. Existing users are returned untouched.
func (s *EntityStore) EnsureMember(ctx context.Context, externalID, name string) (*domain.User, bool, error) {
	var (
		user    *domain.User
		created bool
	)
	err := s.backend.InTx(ctx, func(tx Tx) error {
		var err error
		user, created, err = ensureUser(ctx, tx, externalID, name, s.cal.Now().UTC())
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func ensureUser(ctx context.Context, tx Tx, externalID, name string, now time.Time) (*domain.User, bool, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, false, errors.New("external id is required")
	}
	u, err := tx.UserByExternalID(ctx, externalID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, domain.ErrNoSuchUser) {
		return nil, false, err
	}

	u = &domain.User{ExternalID: externalID, Name: name, JoinedAt: now}
	if err := tx.InsertUser(ctx, u); err != nil {
		return nil, false, err
	}
	if _, err := tx.BackfillUser(ctx, u.ID); err != nil {
		return nil, false, fmt.Errorf("backfill user %d: %w", u.ID, err)
	}
	return u, true, nil
}

// DeleteUser removes a user and cascades its completion rows.
func (s *EntityStore) DeleteUser(ctx context.Context, id int64) (*domain.User, error) {
	var user *domain.User
	err := s.backend.InTx(ctx, func(tx Tx) error {
		u, err := tx.UserByID(ctx, id)
		if err != nil {
			return err
		}
		user = u
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUserByExternalID is DeleteUser keyed by the Telegram id.
func (s *EntityStore) DeleteUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	var user *domain.User
	err := s.backend.InTx(ctx, func(tx Tx) error {
		u, err := tx.UserByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		user = u
		return tx.DeleteUser(ctx, u.ID)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindUser returns a user by id.
func (s *EntityStore) FindUser(ctx context.Context, id int64) (*domain.User, error) {
	var user *domain.User
	err := s.backend.InTx(ctx, func(tx Tx) error {
		u, err := tx.UserByID(ctx, id)
		user = u
		return err
	})
	return user, err
}

// FindUserByExternalID returns a user by Telegram id.
func (s *EntityStore) FindUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	var user *domain.User
	err := s.backend.InTx(ctx, func(tx Tx) error {
		u, err := tx.UserByExternalID(ctx, externalID)
		user = u
		return err
	})
	return user, err
}

// ListUsers returns all users ordered by id.
func (s *EntityStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := s.backend.InTx(ctx, func(tx Tx) error {
		var err error
		users, err = tx.ListUsers(ctx)
		return err
	})
	return users, err
}

// UserHistory returns the user with all completion rows joined to tasks.
func (s *EntityStore) UserHistory(ctx context.Context, userID int64) (*domain.UserHistory, error) {
	var h *domain.UserHistory
	err := s.backend.InTx(ctx, func(tx Tx) error {
		u, err := tx.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		rows, err := tx.ListCompletionsForUser(ctx, userID)
		if err != nil {
			return err
		}
		h = &domain.UserHistory{User: *u, Completions: rows}
		return nil
	})
	return h, err
}

// ListUserHistories returns every user's history in one consistent read.
func (s *EntityStore) ListUserHistories(ctx context.Context) ([]domain.UserHistory, error) {
	var out []domain.UserHistory
	err := s.backend.InTx(ctx, func(tx Tx) error {
		users, err := tx.ListUsers(ctx)
		if err != nil {
			return err
		}
		out = make([]domain.UserHistory, 0, len(users))
		for _, u := range users {
			rows, err := tx.ListCompletionsForUser(ctx, u.ID)
			if err != nil {
				return err
			}
			out = append(out, domain.UserHistory{User: u, Completions: rows})
		}
		return nil
	})
	return out, err
}

// ---- completions ----

// FindCompletion returns the row for (userID, taskID).
func (s *EntityStore) FindCompletion(ctx context.Context, userID, taskID int64) (*domain.TaskCompletion, error) {
	var c *domain.TaskCompletion
	err := s.backend.InTx(ctx, func(tx Tx) error {
		row, err := tx.Completion(ctx, userID, taskID, false)
		c = row
		return err
	})
	return c, err
}

// ListCompletionsForTask returns all rows of a task.
func (s *EntityStore) ListCompletionsForTask(ctx context.Context, taskID int64) ([]domain.TaskCompletion, error) {
	var rows []domain.TaskCompletion
	err := s.backend.InTx(ctx, func(tx Tx) error {
		if _, err := tx.TaskByID(ctx, taskID); err != nil {
			return err
		}
		var err error
		rows, err = tx.ListCompletionsForTask(ctx, taskID)
		return err
	})
	return rows, err
}

// MarkCompletion completes today's task for the user and writes the new streak
// in the same transaction.
func (s *EntityStore) MarkCompletion(ctx context.Context, userID, taskID int64) (*domain.CompletionResult, error) {
	var res *domain.CompletionResult
	err := s.backend.InTx(ctx, func(tx Tx) error {
		// user row first, then the task: the same order as the penalty scan
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		task, err := tx.LockTask(ctx, taskID, false)
		if err != nil {
			return err
		}

		c, err := tx.Completion(ctx, userID, taskID, true)
		if errors.Is(err, domain.ErrNoSuchCompletion) {
			if _, err := tx.BackfillUser(ctx, userID); err != nil {
				return err
			}
			c, err = tx.Completion(ctx, userID, taskID, true)
		}
		if err != nil {
			return err
		}
		if c.Completed {
			return domain.ErrAlreadyCompleted
		}
		if !s.cal.IsToday(task.ScheduledDate) {
			return domain.ErrTaskNotOpen
		}

		prior, err := priorDay(ctx, tx, userID, task.ScheduledDate)
		if err != nil {
			return err
		}
		next := streak.Next(user.CurrentStreak, prior)

		now := s.cal.Now().UTC()
		c.Completed = true
		c.CompletedAt = &now
		if err := tx.SaveCompletion(ctx, c); err != nil {
			return err
		}
		if err := tx.SetStreak(ctx, userID, next); err != nil {
			return err
		}
		user.CurrentStreak = next

		res = &domain.CompletionResult{Completion: *c, Task: *task, User: *user, Streak: next}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func priorDay(ctx context.Context, tx Tx, userID int64, date time.Time) (streak.PriorDay, error) {
	prev, err := tx.TaskByDate(ctx, calendar.AddDays(date, -1))
	if errors.Is(err, domain.ErrNoSuchTask) {
		return streak.PriorDay{}, nil
	}
	if err != nil {
		return streak.PriorDay{}, err
	}

	pd := streak.PriorDay{HasTask: true}
	c, err := tx.Completion(ctx, userID, prev.ID, false)
	switch {
	case err == nil:
		pd.Completed = c.Completed
	case !errors.Is(err, domain.ErrNoSuchCompletion):
		return streak.PriorDay{}, err
	}
	return pd, nil
}

// ---- penalties ----

// ApplyPenalty opens a penalty on a pending row and resets the user's streak to the
// completions recorded after the missed day. It reports whether a penalty was opened;
// rows in any other state, and users deleted meanwhile, are left alone.
func (s *EntityStore) ApplyPenalty(ctx context.Context, userID, taskID int64) (bool, error) {
	applied := false
	err := s.backend.InTx(ctx, func(tx Tx) error {
		// the streak below is derived from other rows; hold the user lock so a
		// concurrent completion cannot commit in between
		if _, err := tx.LockUser(ctx, userID); err != nil {
			if errors.Is(err, domain.ErrNoSuchUser) {
				return nil
			}
			return err
		}
		task, err := tx.TaskByID(ctx, taskID)
		if err != nil {
			return err
		}
		c, err := tx.Completion(ctx, userID, taskID, true)
		if err != nil {
			return err
		}
		if !c.CanOpenPenalty() {
			return nil
		}

		now := s.cal.Now().UTC()
		c.PenaltyAppliedAt = &now
		if err := tx.SaveCompletion(ctx, c); err != nil {
			return err
		}
		n, err := tx.CompletedAfter(ctx, userID, task.ScheduledDate)
		if err != nil {
			return err
		}
		if err := tx.SetStreak(ctx, userID, n); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// SettlePenalties records payment of every open penalty of the user.
func (s *EntityStore) SettlePenalties(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.backend.InTx(ctx, func(tx Tx) error {
		if _, err := tx.UserByID(ctx, userID); err != nil {
			return err
		}
		var err error
		n, err = tx.SettlePenalties(ctx, userID)
		return err
	})
	return n, err
}

// ListDebtors returns users holding an open penalty on a task dated before cutoff.
func (s *EntityStore) ListDebtors(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	var users []domain.User
	err := s.backend.InTx(ctx, func(tx Tx) error {
		var err error
		users, err = tx.ListDebtors(ctx, calendar.Normalize(cutoff))
		return err
	})
	return users, err
}

// HasOverduePenalty re-checks a single user against cutoff.
func (s *EntityStore) HasOverduePenalty(ctx context.Context, userID int64, cutoff time.Time) (bool, error) {
	var ok bool
	err := s.backend.InTx(ctx, func(tx Tx) error {
		var err error
		ok, err = tx.HasOverduePenalty(ctx, userID, calendar.Normalize(cutoff))
		return err
	})
	return ok, err
}
