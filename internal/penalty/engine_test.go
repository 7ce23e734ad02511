package penalty

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookworms/internal/domain"
	"bookworms/internal/notify"
	"bookworms/internal/store"
	"bookworms/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpeller struct {
	mu       sync.Mutex
	fail     map[string]bool
	expelled []string
}

func (f *fakeExpeller) Expel(ctx context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[externalID] {
		return errors.New("Bad Request: not enough rights to restrict/unrestrict chat member")
	}
	f.expelled = append(f.expelled, externalID)
	return nil
}

type fakeAnnouncer struct {
	msgs []notify.Message
}

func (f *fakeAnnouncer) Announce(ctx context.Context, msg notify.Message) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

type fixture struct {
	clock *storetest.Clock
	store *store.EntityStore
	exp   *fakeExpeller
	ann   *fakeAnnouncer
	eng   *Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()
	clock := storetest.NewClock(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
	s := storetest.Open(t, clock)
	exp := &fakeExpeller{fail: map[string]bool{}}
	ann := &fakeAnnouncer{}
	return &fixture{clock: clock, store: s, exp: exp, ann: ann, eng: NewEngine(s, exp, ann, time.Second)}
}

func TestApplyForDate_OpensPenaltiesOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	a, _, err := f.store.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	b, _, err := f.store.EnsureMember(ctx, "2", "b")
	require.NoError(t, err)
	task, err := f.store.CreateTask(ctx, f.clock.Day(0), "d0")
	require.NoError(t, err)
	_, err = f.store.MarkCompletion(ctx, b.ID, task.ID)
	require.NoError(t, err)

	f.clock.AddDays(1)
	rep, err := f.eng.ApplyForDate(ctx, task.ScheduledDate)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Applied)
	assert.Empty(t, rep.Failed)

	rep, err = f.eng.ApplyForDate(ctx, task.ScheduledDate)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Applied)

	c, err := f.store.FindCompletion(ctx, a.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePenaltyOpen, c.State())

	c, err = f.store.FindCompletion(ctx, b.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, c.State())
}

func TestApplyForDate_NoTask(t *testing.T) {
	f := setup(t)
	rep, err := f.eng.ApplyForDate(context.Background(), f.clock.Day(-1))
	require.NoError(t, err)
	assert.Zero(t, rep.Processed)
}

func TestEnforceRemovals_AfterGracePeriod(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	late, _, err := f.store.EnsureMember(ctx, "1", "Late <reader>")
	require.NoError(t, err)
	payer, _, err := f.store.EnsureMember(ctx, "2", "Payer")
	require.NoError(t, err)
	task, err := f.store.CreateTask(ctx, f.clock.Day(0), "d0")
	require.NoError(t, err)

	f.clock.AddDays(1)
	_, err = f.eng.ApplyForDate(ctx, task.ScheduledDate)
	require.NoError(t, err)
	_, err = f.eng.Settle(ctx, payer.ID)
	require.NoError(t, err)

	// seven days old: still inside the grace period
	f.clock.AddDays(6)
	rep, err := f.eng.EnforceRemovals(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Removed)
	assert.Empty(t, f.exp.expelled)

	// eight days old
	f.clock.AddDays(1)
	rep, err = f.eng.EnforceRemovals(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, rep.Removed)
	assert.Equal(t, []string{"1"}, f.exp.expelled)

	_, err = f.store.FindUser(ctx, late.ID)
	assert.ErrorIs(t, err, domain.ErrNoSuchUser)
	_, err = f.store.FindCompletion(ctx, late.ID, task.ID)
	assert.ErrorIs(t, err, domain.ErrNoSuchCompletion)

	_, err = f.store.FindUser(ctx, payer.ID)
	assert.NoError(t, err)

	require.Len(t, f.ann.msgs, 1)
	assert.Contains(t, f.ann.msgs[0].Text, "Late &lt;reader&gt;")
}

func TestEnforceRemovals_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	stuck, _, err := f.store.EnsureMember(ctx, "1", "admin")
	require.NoError(t, err)
	gone, _, err := f.store.EnsureMember(ctx, "2", "b")
	require.NoError(t, err)
	task, err := f.store.CreateTask(ctx, f.clock.Day(0), "d0")
	require.NoError(t, err)

	f.clock.AddDays(1)
	_, err = f.eng.ApplyForDate(ctx, task.ScheduledDate)
	require.NoError(t, err)

	f.exp.fail["1"] = true
	f.clock.AddDays(7)
	rep, err := f.eng.EnforceRemovals(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, []string{"2"}, rep.Removed)
	require.Contains(t, rep.Failed, "1")
	assert.ErrorIs(t, rep.Failed["1"], domain.ErrExternalRoster)

	// a failed expulsion keeps the user so the next run retries
	_, err = f.store.FindUser(ctx, stuck.ID)
	assert.NoError(t, err)
	_, err = f.store.FindUser(ctx, gone.ID)
	assert.ErrorIs(t, err, domain.ErrNoSuchUser)
}

func TestEnforceRemovals_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := setup(t)

	_, _, err := f.store.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	task, err := f.store.CreateTask(ctx, f.clock.Day(0), "d0")
	require.NoError(t, err)
	f.clock.AddDays(1)
	_, err = f.eng.ApplyForDate(ctx, task.ScheduledDate)
	require.NoError(t, err)
	f.clock.AddDays(8)

	cancel()
	_, err = f.eng.EnforceRemovals(ctx)
	assert.Error(t, err)
	assert.Empty(t, f.exp.expelled)
}
