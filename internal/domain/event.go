package domain

import "time"

// Event is a notable state change pushed to the admin panel feed.
type Event struct {
	Type      string         `json:"type"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Event types
const (
	EventTaskCreated      = "task_created"
	EventTaskUpdated      = "task_updated"
	EventTaskDeleted      = "task_deleted"
	EventTaskCompleted    = "task_completed"
	EventPenaltiesSettled = "penalties_settled"
	EventUserDeleted      = "user_deleted"
	EventMemberJoined     = "member_joined"
	EventMemberLeft       = "member_left"
	EventTriggerFinished  = "trigger_finished"
)

// NewEvent stamps an event with the current time.
func NewEvent(typ string, details map[string]any) Event {
	return Event{Type: typ, Details: details, CreatedAt: time.Now().UTC()}
}
