package domain

import "time"

// Task is the single reading assignment for one calendar day.
// ScheduledDate is the civil date at 00:00 UTC.
type Task struct {
	ID            int64     `db:"id" json:"id"`
	Description   string    `db:"description" json:"description"`
	ScheduledDate time.Time `db:"scheduled_date" json:"scheduled_date"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DateString formats the scheduled date as YYYY-MM-DD
func (t *Task) DateString() string {
	return t.ScheduledDate.Format(DateLayout)
}

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"
