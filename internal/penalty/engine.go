// Package penalty runs the nightly penalty scan and expels members whose
// penalties stay unpaid past the grace period.
package penalty

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"bookworms/internal/calendar"
	"bookworms/internal/domain"
	"bookworms/internal/logger"
	"bookworms/internal/notify"
	"bookworms/internal/store"
)

// GracePeriod is how long an open penalty may stay unpaid.
const GracePeriod = 7 * 24 * time.Hour

// Expeller removes a member from the group.
type Expeller interface {
	Expel(ctx context.Context, externalID string) error
}

// Announcer posts to the group.
type Announcer interface {
	Announce(ctx context.Context, msg notify.Message) error
}

// Report summarizes one batch run.
type Report struct {
	Processed int
	Applied   int
	Removed   []string
	Failed    map[string]error
}

func newReport() *Report { return &Report{Failed: map[string]error{}} }

func (r *Report) fail(key string, err error) { r.Failed[key] = err }

// Engine drives the penalty state machine over the whole roster.
type Engine struct {
	store     *store.EntityStore
	cal       *calendar.Calendar
	expeller  Expeller
	announcer Announcer
	timeout   time.Duration
	graceDays int
	log       *slog.Logger
}

// NewEngine creates a penalty engine. timeout bounds each external call.
func NewEngine(s *store.EntityStore, expeller Expeller, announcer Announcer, timeout time.Duration) *Engine {
	return &Engine{
		store:     s,
		cal:       s.Calendar(),
		expeller:  expeller,
		announcer: announcer,
		timeout:   timeout,
		graceDays: int(GracePeriod / (24 * time.Hour)),
		log:       logger.With("component", "penalty"),
	}
}

// ApplyForDate opens a penalty for every user who left the task on date incomplete.
// A day without a task is a no-op. Each user is its own transaction.
func (e *Engine) ApplyForDate(ctx context.Context, date time.Time) (*Report, error) {
	rep := newReport()
	task, err := e.store.FindTaskForDate(ctx, date)
	if errors.Is(err, domain.ErrNoSuchTask) {
		e.log.InfoContext(ctx, "no task for date, nothing to penalize", "date", date.Format(domain.DateLayout))
		return rep, nil
	}
	if err != nil {
		return rep, fmt.Errorf("find task: %w", err)
	}

	rows, err := e.store.ListCompletionsForTask(ctx, task.ID)
	if err != nil {
		return rep, fmt.Errorf("list completions: %w", err)
	}

	for _, c := range rows {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if c.State() != domain.StatePending {
			continue
		}
		rep.Processed++
		applied, err := e.store.ApplyPenalty(ctx, c.UserID, task.ID)
		if err != nil {
			e.log.ErrorContext(ctx, "apply penalty failed", "user_id", c.UserID, "task_id", task.ID, "error", err)
			rep.fail(fmt.Sprint(c.UserID), err)
			continue
		}
		if applied {
			rep.Applied++
		}
	}

	e.log.InfoContext(ctx, "penalty scan complete",
		"date", task.DateString(), "processed", rep.Processed, "applied", rep.Applied, "failed", len(rep.Failed))
	return rep, nil
}

// EnforceRemovals expels every user whose open penalty is older than the grace period.
// The user row is deleted only after the expulsion succeeded.
func (e *Engine) EnforceRemovals(ctx context.Context) (*Report, error) {
	rep := newReport()
	cutoff := calendar.AddDays(e.cal.Today(), -e.graceDays)

	debtors, err := e.store.ListDebtors(ctx, cutoff)
	if err != nil {
		return rep, fmt.Errorf("list debtors: %w", err)
	}

	for _, u := range debtors {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Processed++
		removed, err := e.remove(ctx, u, cutoff)
		if err != nil {
			e.log.ErrorContext(ctx, "removal failed", "user_id", u.ID, "external_id", u.ExternalID, "error", err)
			rep.fail(u.ExternalID, err)
			continue
		}
		if removed {
			rep.Removed = append(rep.Removed, u.ExternalID)
		}
	}

	e.log.InfoContext(ctx, "removal enforcement complete",
		"cutoff", cutoff.Format(domain.DateLayout), "processed", rep.Processed, "removed", len(rep.Removed), "failed", len(rep.Failed))
	return rep, nil
}

func (e *Engine) remove(ctx context.Context, u domain.User, cutoff time.Time) (bool, error) {
	// the admin may have recorded payment since the list was read
	still, err := e.store.HasOverduePenalty(ctx, u.ID, cutoff)
	if err != nil {
		return false, err
	}
	if !still {
		return false, nil
	}

	xctx, cancel := context.WithTimeout(ctx, e.timeout)
	err = e.expeller.Expel(xctx, u.ExternalID)
	cancel()
	if err != nil {
		return false, fmt.Errorf("%w: expel %s: %v", domain.ErrExternalRoster, u.ExternalID, err)
	}

	if _, err := e.store.DeleteUser(ctx, u.ID); err != nil && !errors.Is(err, domain.ErrNoSuchUser) {
		return false, fmt.Errorf("delete user: %w", err)
	}

	msg := notify.Text("🚫 %s to'lanmagan jarima sababli guruhdan chiqarildi.", html.EscapeString(displayName(u)))
	_ = e.announcer.Announce(ctx, msg)
	return true, nil
}

// Settle records payment of all the user's open penalties.
func (e *Engine) Settle(ctx context.Context, userID int64) (int64, error) {
	n, err := e.store.SettlePenalties(ctx, userID)
	if err != nil {
		return 0, err
	}
	e.log.InfoContext(ctx, "penalties settled", "user_id", userID, "count", n)
	return n, nil
}

func displayName(u domain.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ExternalID
}
