package service

import (
	"context"
	"log/slog"

	"bookworms/internal/calendar"
	"bookworms/internal/domain"
	"bookworms/internal/logger"
	"bookworms/internal/penalty"
	"bookworms/internal/scheduler"
	"bookworms/internal/store"
	"bookworms/internal/streak"
)

// TriggerRunner runs a named trigger outside its schedule.
type TriggerRunner interface {
	RunNow(ctx context.Context, name string) (scheduler.Result, error)
}

// AdminService provides the admin panel operations
type AdminService struct {
	store     *store.EntityStore
	cal       *calendar.Calendar
	penalties *penalty.Engine
	triggers  TriggerRunner
	events    EventPublisher
	log       *slog.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(s *store.EntityStore, penalties *penalty.Engine, triggers TriggerRunner, events EventPublisher) *AdminService {
	return &AdminService{
		store:     s,
		cal:       s.Calendar(),
		penalties: penalties,
		triggers:  triggers,
		events:    orNop(events),
		log:       logger.With("component", "admin"),
	}
}

// UserSummary is one row of the admin user list.
type UserSummary struct {
	domain.UserHistory
	Stats         domain.UserStats `json:"stats"`
	Level         string           `json:"level"`
	OpenPenalties int              `json:"open_penalties"`
}

// Stats represents group-wide statistics
type Stats struct {
	TotalUsers     int `json:"total_users"`
	TotalTasks     int `json:"total_tasks"`
	CompletedToday int `json:"completed_today"`
	OpenPenalties  int `json:"open_penalties"`
	Debtors        int `json:"debtors"`
}

// Users returns every user with their completion history.
func (s *AdminService) Users(ctx context.Context) ([]UserSummary, error) {
	histories, err := s.store.ListUserHistories(ctx)
	if err != nil {
		return nil, err
	}
	today, now := s.cal.Today(), s.cal.Now()
	out := make([]UserSummary, 0, len(histories))
	for i := range histories {
		h := &histories[i]
		out = append(out, UserSummary{
			UserHistory:   *h,
			Stats:         domain.ComputeStats(h, today, now),
			Level:         streak.Level(h.CurrentStreak),
			OpenPenalties: openPenalties(h),
		})
	}
	return out, nil
}

// GetStats returns group statistics
func (s *AdminService) GetStats(ctx context.Context) (*Stats, error) {
	users, err := s.Users(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	today := s.cal.Today()
	stats := &Stats{TotalUsers: len(users), TotalTasks: len(tasks)}
	for _, u := range users {
		stats.OpenPenalties += u.OpenPenalties
		if u.OpenPenalties > 0 {
			stats.Debtors++
		}
		for _, c := range u.Completions {
			if c.Completed && c.Task.ScheduledDate.Equal(today) {
				stats.CompletedToday++
			}
		}
	}
	return stats, nil
}

// MarkPayment settles every open penalty of the user.
func (s *AdminService) MarkPayment(ctx context.Context, userID int64) (int64, error) {
	n, err := s.penalties.Settle(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.events.Publish(domain.NewEvent(domain.EventPenaltiesSettled, map[string]any{
		"user_id": userID, "settled": n,
	}))
	return n, nil
}

// DeleteUser removes a user and their completion rows.
func (s *AdminService) DeleteUser(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := s.store.DeleteUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.log.Info("user deleted", "user_id", u.ID, "external_id", u.ExternalID)
	s.events.Publish(domain.NewEvent(domain.EventUserDeleted, map[string]any{
		"user_id": u.ID, "external_id": u.ExternalID, "name": u.Name,
	}))
	return u, nil
}

// RunTrigger runs a scheduled action now.
func (s *AdminService) RunTrigger(ctx context.Context, name string) (scheduler.Result, error) {
	s.log.Info("manual trigger", "trigger", name)
	return s.triggers.RunNow(ctx, name)
}

func openPenalties(h *domain.UserHistory) int {
	n := 0
	for i := range h.Completions {
		if h.Completions[i].IsOpenPenalty() {
			n++
		}
	}
	return n
}
