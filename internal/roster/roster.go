// Package roster keeps the stored users in line with the group's actual membership.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookworms/internal/domain"
	"bookworms/internal/logger"
	"bookworms/internal/store"
)

// Member is one entry of the external directory.
type Member struct {
	ExternalID string
	Name       string
	IsAdmin    bool
}

// Directory answers membership questions about the group.
type Directory interface {
	ListMembers(ctx context.Context) ([]Member, error)
	IsMember(ctx context.Context, externalID string) (bool, error)
}

// Report summarizes a reconciliation pass.
type Report struct {
	Checked int
	Removed []string
	Failed  map[string]error
}

// Reconciler applies membership changes to the entity store.
type Reconciler struct {
	store   *store.EntityStore
	dir     Directory
	timeout time.Duration
	log     *slog.Logger
}

// NewReconciler creates a reconciler. timeout bounds every directory call.
func NewReconciler(s *store.EntityStore, dir Directory, timeout time.Duration) *Reconciler {
	return &Reconciler{
		store:   s,
		dir:     dir,
		timeout: timeout,
		log:     logger.With("component", "roster"),
	}
}

// ReconcileAll deletes every stored user the directory no longer lists as a member.
// A directory error for one user is recorded and the pass continues.
func (r *Reconciler) ReconcileAll(ctx context.Context) (*Report, error) {
	rep := &Report{Failed: map[string]error{}}
	users, err := r.store.ListUsers(ctx)
	if err != nil {
		return rep, fmt.Errorf("list users: %w", err)
	}

	for _, u := range users {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Checked++

		member, err := r.isMember(ctx, u.ExternalID)
		if err != nil {
			r.log.WarnContext(ctx, "membership check failed", "external_id", u.ExternalID, "error", err)
			rep.Failed[u.ExternalID] = err
			continue
		}
		if member {
			continue
		}

		if _, err := r.store.DeleteUser(ctx, u.ID); err != nil && !errors.Is(err, domain.ErrNoSuchUser) {
			rep.Failed[u.ExternalID] = err
			continue
		}
		r.log.InfoContext(ctx, "removed departed member", "external_id", u.ExternalID, "name", u.Name)
		rep.Removed = append(rep.Removed, u.ExternalID)
	}

	r.log.InfoContext(ctx, "roster reconciled", "checked", rep.Checked, "removed", len(rep.Removed), "failed", len(rep.Failed))
	return rep, nil
}

// OnMemberJoined registers a member. Repeated joins are no-ops.
func (r *Reconciler) OnMemberJoined(ctx context.Context, externalID, name string) (*domain.User, bool, error) {
	u, created, err := r.store.EnsureMember(ctx, externalID, name)
	if err != nil {
		return nil, false, err
	}
	if created {
		r.log.InfoContext(ctx, "member joined", "external_id", externalID, "name", name)
	}
	return u, created, nil
}

// OnMemberLeft removes a departed member if stored.
func (r *Reconciler) OnMemberLeft(ctx context.Context, externalID string) (bool, error) {
	_, err := r.store.DeleteUserByExternalID(ctx, externalID)
	if errors.Is(err, domain.ErrNoSuchUser) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.log.InfoContext(ctx, "member left", "external_id", externalID)
	return true, nil
}

// IsMember asks the directory with a bounded timeout.
func (r *Reconciler) IsMember(ctx context.Context, externalID string) (bool, error) {
	return r.isMember(ctx, externalID)
}

func (r *Reconciler) isMember(ctx context.Context, externalID string) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ok, err := r.dir.IsMember(cctx, externalID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrExternalRoster, err)
	}
	return ok, nil
}

// Admins returns the directory members flagged as admins.
func (r *Reconciler) Admins(ctx context.Context) ([]Member, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	members, err := r.dir.ListMembers(cctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalRoster, err)
	}
	var admins []Member
	for _, m := range members {
		if m.IsAdmin {
			admins = append(admins, m)
		}
	}
	return admins, nil
}

// IsAdmin reports whether externalID is a group admin.
func (r *Reconciler) IsAdmin(ctx context.Context, externalID string) (bool, error) {
	admins, err := r.Admins(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range admins {
		if a.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}
