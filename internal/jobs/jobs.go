// Package jobs implements the scheduled trigger actions.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"

	"bookworms/internal/calendar"
	"bookworms/internal/config"
	"bookworms/internal/domain"
	"bookworms/internal/logger"
	"bookworms/internal/notify"
	"bookworms/internal/penalty"
	"bookworms/internal/roster"
	"bookworms/internal/scheduler"
	"bookworms/internal/store"
	"bookworms/internal/streak"
)

// Notifier is the subset of notify.Dispatcher the jobs use.
type Notifier interface {
	Announce(ctx context.Context, msg notify.Message) error
	Notify(ctx context.Context, recipients []string, msg notify.Message) notify.Report
}

// Jobs holds the collaborators of every trigger action.
type Jobs struct {
	store     *store.EntityStore
	cal       *calendar.Calendar
	penalties *penalty.Engine
	roster    *roster.Reconciler
	notifier  Notifier
	topN      int
	log       *slog.Logger
}

// New wires the trigger actions.
func New(s *store.EntityStore, penalties *penalty.Engine, r *roster.Reconciler, n Notifier) *Jobs {
	return &Jobs{
		store:     s,
		cal:       s.Calendar(),
		penalties: penalties,
		roster:    r,
		notifier:  n,
		topN:      10,
		log:       logger.With("component", "jobs"),
	}
}

// Actions maps trigger names to their actions.
func (j *Jobs) Actions() map[string]scheduler.Action {
	return map[string]scheduler.Action{
		config.TriggerPublishToday:   j.PublishToday,
		config.TriggerPostStatistics: j.PostStatistics,
		config.TriggerRemindTonight:  j.RemindTonight,
		config.TriggerAdminEscalate:  j.AdminEscalate,
		config.TriggerApplyPenalties: j.ApplyPenalties,
		config.TriggerEnforceRemoval: j.EnforceRemoval,
		config.TriggerReconcile:      j.ReconcileRoster,
	}
}

// Register adds every enabled trigger of the schedule to s.
func (j *Jobs) Register(s *scheduler.Scheduler, schedule config.Schedule) error {
	actions := j.Actions()
	for _, name := range schedule.Names() {
		entry := schedule[name]
		action, ok := actions[name]
		if !ok {
			return fmt.Errorf("%w: %s", scheduler.ErrUnknownTrigger, name)
		}
		if !entry.Enabled {
			j.log.Info("trigger disabled", "trigger", name)
			continue
		}
		if err := s.Register(scheduler.Trigger{
			Name:     name,
			Cron:     entry.Cron,
			Timezone: entry.Timezone,
			Action:   action,
		}); err != nil {
			return err
		}
	}
	return nil
}

// PublishToday announces today's task, or that there is none.
func (j *Jobs) PublishToday(ctx context.Context) error {
	task, err := j.store.FindTaskForDate(ctx, j.cal.Today())
	if errors.Is(err, domain.ErrNoSuchTask) {
		return j.notifier.Announce(ctx, notify.Text("Bugun uchun vazifa topilmadi."))
	}
	if err != nil {
		return err
	}
	return j.notifier.Announce(ctx, TaskAnnouncement(task))
}

// TaskAnnouncement renders the daily task message.
func TaskAnnouncement(task *domain.Task) notify.Message {
	return notify.Text("📚 <b>Bugungi vazifa</b> (%s)\n\n%s\n\nBajarganingizdan so'ng /done yuboring.",
		task.DateString(), html.EscapeString(task.Description))
}

// PostStatistics posts the streak leaderboard to the group.
func (j *Jobs) PostStatistics(ctx context.Context) error {
	users, err := j.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}
	return j.notifier.Announce(ctx, Leaderboard(users, j.topN))
}

// Leaderboard renders the top n users by streak.
func Leaderboard(users []domain.User, n int) notify.Message {
	sorted := append([]domain.User(nil), users...)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].CurrentStreak != sorted[b].CurrentStreak {
			return sorted[a].CurrentStreak > sorted[b].CurrentStreak
		}
		return sorted[a].Name < sorted[b].Name
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Kunlik statistika</b>\n\n")
	for i, u := range sorted {
		fmt.Fprintf(&sb, "%d. %s: %d 🔥 %s\n", i+1, html.EscapeString(u.Name), u.CurrentStreak, streak.Level(u.CurrentStreak))
	}
	return notify.Message{Text: sb.String(), HTML: true}
}

// RemindTonight privately reminds every member who has not completed today's task.
func (j *Jobs) RemindTonight(ctx context.Context) error {
	task, err := j.store.FindTaskForDate(ctx, j.cal.Today())
	if errors.Is(err, domain.ErrNoSuchTask) {
		return nil
	}
	if err != nil {
		return err
	}

	rows, err := j.store.ListCompletionsForTask(ctx, task.ID)
	if err != nil {
		return err
	}
	users, err := j.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	byID := make(map[int64]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	var recipients []string
	for _, c := range rows {
		if c.Completed {
			continue
		}
		u, ok := byID[c.UserID]
		if !ok {
			continue
		}
		member, err := j.roster.IsMember(ctx, u.ExternalID)
		if err != nil {
			j.log.WarnContext(ctx, "membership check failed, reminding anyway", "external_id", u.ExternalID, "error", err)
		} else if !member {
			continue
		}
		recipients = append(recipients, u.ExternalID)
	}

	msg := notify.Text("⏰ Eslatma: bugungi vazifani yarim tungacha bajaring!\n\n%s", html.EscapeString(task.Description))
	rep := j.notifier.Notify(ctx, recipients, msg)
	if len(rep.Skipped) > 0 {
		return ctx.Err()
	}
	return nil
}

// AdminEscalate warns the admins when tomorrow has no task yet.
func (j *Jobs) AdminEscalate(ctx context.Context) error {
	_, err := j.store.FindTaskForDate(ctx, j.cal.Tomorrow())
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNoSuchTask) {
		return err
	}

	admins, err := j.roster.Admins(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ExternalID)
	}
	msg := notify.Text("⚠️ Ertaga (%s) uchun vazifa topilmadi! Iltimos, admin paneldan vazifa qo'shing.",
		j.cal.Tomorrow().Format(domain.DateLayout))
	j.notifier.Notify(ctx, ids, msg)
	return nil
}

// ApplyPenalties penalizes yesterday's incomplete rows.
func (j *Jobs) ApplyPenalties(ctx context.Context) error {
	rep, err := j.penalties.ApplyForDate(ctx, j.cal.Yesterday())
	if err != nil {
		return err
	}
	if len(rep.Failed) > 0 {
		return fmt.Errorf("%d of %d penalties failed", len(rep.Failed), rep.Processed)
	}
	return nil
}

// EnforceRemoval expels members with overdue penalties.
func (j *Jobs) EnforceRemoval(ctx context.Context) error {
	rep, err := j.penalties.EnforceRemovals(ctx)
	if err != nil {
		return err
	}
	if len(rep.Failed) > 0 {
		return fmt.Errorf("%d of %d removals failed", len(rep.Failed), rep.Processed)
	}
	return nil
}

// ReconcileRoster drops stored users who left the group.
func (j *Jobs) ReconcileRoster(ctx context.Context) error {
	rep, err := j.roster.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	if len(rep.Failed) > 0 {
		return fmt.Errorf("%d of %d membership checks failed", len(rep.Failed), rep.Checked)
	}
	return nil
}
