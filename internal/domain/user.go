package domain

import "time"

// User is a group member. ExternalID is the Telegram user id.
type User struct {
	ID            int64     `db:"id" json:"id"`
	ExternalID    string    `db:"external_id" json:"external_id"`
	Name          string    `db:"name" json:"name"`
	CurrentStreak int       `db:"current_streak" json:"current_streak"`
	JoinedAt      time.Time `db:"joined_at" json:"joined_at"`
}

// UserHistory is a user with every completion row joined to its task.
type UserHistory struct {
	User
	Completions []CompletionWithTask `json:"completions"`
}

// CompletionWithTask - completion row plus the task it belongs to (admin listing, stats)
type CompletionWithTask struct {
	TaskCompletion
	Task Task `json:"task"`
}
