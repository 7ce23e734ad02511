package service

import (
	"context"
	"errors"
	"log/slog"

	"bookworms/internal/calendar"
	"bookworms/internal/domain"
	"bookworms/internal/logger"
	"bookworms/internal/roster"
	"bookworms/internal/store"
	"bookworms/internal/streak"
)

// ErrNotMember is returned when the caller is not in the group.
var ErrNotMember = errors.New("not a group member")

// MemberStats is what a member sees for "show my stats".
type MemberStats struct {
	User  domain.User      `json:"user"`
	Stats domain.UserStats `json:"stats"`
	Level string           `json:"level"`
}

// MemberService serves the member-facing bot commands.
type MemberService struct {
	store  *store.EntityStore
	cal    *calendar.Calendar
	roster *roster.Reconciler
	events EventPublisher
	log    *slog.Logger
}

func NewMemberService(s *store.EntityStore, r *roster.Reconciler, events EventPublisher) *MemberService {
	return &MemberService{
		store:  s,
		cal:    s.Calendar(),
		roster: r,
		events: orNop(events),
		log:    logger.With("component", "members"),
	}
}

// Register stores a group member, backfilling their rows for existing tasks.
func (s *MemberService) Register(ctx context.Context, externalID, name string) (*domain.User, bool, error) {
	if err := s.requireMember(ctx, externalID); err != nil {
		return nil, false, err
	}
	return s.join(ctx, externalID, name)
}

// Joined handles a join event from the group. Membership is implied.
func (s *MemberService) Joined(ctx context.Context, externalID, name string) (*domain.User, bool, error) {
	return s.join(ctx, externalID, name)
}

func (s *MemberService) join(ctx context.Context, externalID, name string) (*domain.User, bool, error) {
	u, created, err := s.roster.OnMemberJoined(ctx, externalID, name)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.events.Publish(domain.NewEvent(domain.EventMemberJoined, map[string]any{
			"user_id": u.ID, "external_id": u.ExternalID, "name": u.Name,
		}))
	}
	return u, created, nil
}

// Left removes a member that left the group.
func (s *MemberService) Left(ctx context.Context, externalID string) (bool, error) {
	removed, err := s.roster.OnMemberLeft(ctx, externalID)
	if err != nil {
		return false, err
	}
	if removed {
		s.events.Publish(domain.NewEvent(domain.EventMemberLeft, map[string]any{"external_id": externalID}))
	}
	return removed, nil
}

// CompleteToday marks today's task done for the member. Unknown members of the
// group are registered first.
func (s *MemberService) CompleteToday(ctx context.Context, externalID, name string) (*domain.CompletionResult, error) {
	if err := s.requireMember(ctx, externalID); err != nil {
		return nil, err
	}
	u, _, err := s.join(ctx, externalID, name)
	if err != nil {
		return nil, err
	}
	task, err := s.store.FindTaskForDate(ctx, s.cal.Today())
	if err != nil {
		return nil, err
	}
	res, err := s.store.MarkCompletion(ctx, u.ID, task.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info("task completed", "user_id", u.ID, "task_id", task.ID, "streak", res.Streak)
	s.events.Publish(domain.NewEvent(domain.EventTaskCompleted, map[string]any{
		"user_id": u.ID, "name": u.Name, "task_id": task.ID, "streak": res.Streak,
	}))
	return res, nil
}

// Stats computes the member's statistics.
func (s *MemberService) Stats(ctx context.Context, externalID string) (*MemberStats, error) {
	if err := s.requireMember(ctx, externalID); err != nil {
		return nil, err
	}
	u, err := s.store.FindUserByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	h, err := s.store.UserHistory(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &MemberStats{
		User:  h.User,
		Stats: domain.ComputeStats(h, s.cal.Today(), s.cal.Now()),
		Level: streak.Level(h.CurrentStreak),
	}, nil
}

// IsAdmin reports whether the member administers the group.
func (s *MemberService) IsAdmin(ctx context.Context, externalID string) (bool, error) {
	return s.roster.IsAdmin(ctx, externalID)
}

// Sync reconciles the stored users with the group.
func (s *MemberService) Sync(ctx context.Context) (*roster.Report, error) {
	return s.roster.ReconcileAll(ctx)
}

func (s *MemberService) requireMember(ctx context.Context, externalID string) error {
	ok, err := s.roster.IsMember(ctx, externalID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}
