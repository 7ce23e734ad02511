package domain

import "time"

// TaskCompletion is the per (user, task) record. At most one exists per pair.
type TaskCompletion struct {
	ID               int64      `db:"id" json:"id"`
	UserID           int64      `db:"user_id" json:"user_id"`
	TaskID           int64      `db:"task_id" json:"task_id"`
	Completed        bool       `db:"completed" json:"completed"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	PenaltyPaid      bool       `db:"penalty_paid" json:"penalty_paid"`
	PenaltyAppliedAt *time.Time `db:"penalty_applied_at" json:"penalty_applied_at,omitempty"`
}

// CompletionResult is returned by a successful completion: the updated row and the
// streak written back to the user in the same transaction.
type CompletionResult struct {
	Completion TaskCompletion `json:"completion"`
	Task       Task           `json:"task"`
	User       User           `json:"user"`
	Streak     int            `json:"streak"`
}
