// Package store owns tasks, users and completion rows and enforces their invariants.
package store

import (
	"context"
	"time"

	"bookworms/internal/domain"
)

// Backend runs a function inside one database transaction. The transaction commits
// when fn returns nil and rolls back otherwise. Failing to obtain a connection or to
// begin is reported as domain.ErrStoreUnavailable.
type Backend interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// Tx is the row-level primitive set a backend exposes inside a transaction.
// Lookups return the domain "no such" sentinel when the row is missing.
type Tx interface {
	TaskByID(ctx context.Context, id int64) (*domain.Task, error)
	// LockTask reads the task and locks its row until the transaction ends:
	// exclusive for changes to the task itself, shared for completing it.
	LockTask(ctx context.Context, id int64, exclusive bool) (*domain.Task, error)
	TaskByDate(ctx context.Context, date time.Time) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	// InsertTask fills ID and CreatedAt. A clash on scheduled_date is ErrDuplicateDate.
	InsertTask(ctx context.Context, t *domain.Task) error
	UpdateTask(ctx context.Context, t *domain.Task) error
	DeleteTask(ctx context.Context, id int64) error

	UserByID(ctx context.Context, id int64) (*domain.User, error)
	// LockUser reads the user and locks its row until the transaction ends.
	// Every streak write takes this lock first.
	LockUser(ctx context.Context, id int64) (*domain.User, error)
	UserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	// InsertUser stores u with its JoinedAt and fills ID.
	InsertUser(ctx context.Context, u *domain.User) error
	UpdateUserName(ctx context.Context, id int64, name string) error
	SetStreak(ctx context.Context, id int64, streak int) error
	DeleteUser(ctx context.Context, id int64) error

	// Completion reads one row; forUpdate locks it until the transaction ends.
	Completion(ctx context.Context, userID, taskID int64, forUpdate bool) (*domain.TaskCompletion, error)
	SaveCompletion(ctx context.Context, c *domain.TaskCompletion) error
	// BackfillTask creates a pending row for every user lacking one for the task.
	BackfillTask(ctx context.Context, taskID int64) (int64, error)
	// BackfillUser creates a pending row for every task the user lacks one for.
	BackfillUser(ctx context.Context, userID int64) (int64, error)
	// CompletedAfter counts the user's completed rows on tasks dated after date.
	CompletedAfter(ctx context.Context, userID int64, date time.Time) (int, error)
	// CountCompleted counts the completed rows of a task.
	CountCompleted(ctx context.Context, taskID int64) (int, error)
	ListCompletionsForTask(ctx context.Context, taskID int64) ([]domain.TaskCompletion, error)
	ListCompletionsForUser(ctx context.Context, userID int64) ([]domain.CompletionWithTask, error)

	// ListDebtors returns users with an applied, unpaid penalty on a task dated before cutoff.
	ListDebtors(ctx context.Context, cutoff time.Time) ([]domain.User, error)
	HasOverduePenalty(ctx context.Context, userID int64, cutoff time.Time) (bool, error)
	// SettlePenalties marks every applied, unpaid penalty of the user as paid.
	SettlePenalties(ctx context.Context, userID int64) (int64, error)
}
