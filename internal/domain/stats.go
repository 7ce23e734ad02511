package domain

import (
	"math"
	"time"
)

// UserStats is the "show my stats" read model.
type UserStats struct {
	Completed      int `json:"completed"`
	Missed         int `json:"missed"`
	Total          int `json:"total"`
	Efficiency     int `json:"efficiency"` // percent, rounded
	MembershipDays int `json:"membership_days"`
	Streak         int `json:"streak"`
}

// ComputeStats derives stats from a user's history. Only resolved days count:
// past tasks, plus today's task once it is completed.
func ComputeStats(h *UserHistory, today, now time.Time) UserStats {
	var s UserStats
	for _, c := range h.Completions {
		switch {
		case c.Completed:
			s.Completed++
		case c.Task.ScheduledDate.Before(today):
			s.Missed++
		}
	}
	s.Total = s.Completed + s.Missed
	if s.Total > 0 {
		s.Efficiency = int(math.Round(float64(s.Completed) / float64(s.Total) * 100))
	}

	s.MembershipDays = int(now.Sub(h.JoinedAt) / (24 * time.Hour))
	if s.MembershipDays < 1 {
		s.MembershipDays = 1
	}
	s.Streak = h.CurrentStreak
	return s
}
