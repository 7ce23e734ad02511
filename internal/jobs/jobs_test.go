package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"bookworms/internal/config"
	"bookworms/internal/domain"
	"bookworms/internal/notify"
	"bookworms/internal/penalty"
	"bookworms/internal/roster"
	"bookworms/internal/scheduler"
	"bookworms/internal/store"
	"bookworms/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	to  []string
	msg notify.Message
}

type fakeNotifier struct {
	mu        sync.Mutex
	announced []notify.Message
	notified  []sent
}

func (f *fakeNotifier) Announce(ctx context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, msg)
	return nil
}

func (f *fakeNotifier) Notify(ctx context.Context, recipients []string, msg notify.Message) notify.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, sent{to: recipients, msg: msg})
	return notify.Report{Sent: len(recipients)}
}

type fakeDirectory struct {
	members map[string]roster.Member
}

func (f *fakeDirectory) ListMembers(ctx context.Context) ([]roster.Member, error) {
	var out []roster.Member
	for _, m := range f.members {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeDirectory) IsMember(ctx context.Context, externalID string) (bool, error) {
	_, ok := f.members[externalID]
	return ok, nil
}

type nopExpeller struct{}

func (nopExpeller) Expel(context.Context, string) error { return nil }

type fixture struct {
	clock *storetest.Clock
	store *store.EntityStore
	dir   *fakeDirectory
	n     *fakeNotifier
	jobs  *Jobs
}

func setup(t *testing.T) *fixture {
	t.Helper()
	clock := storetest.NewClock(time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC))
	s := storetest.Open(t, clock)
	dir := &fakeDirectory{members: map[string]roster.Member{}}
	n := &fakeNotifier{}
	r := roster.NewReconciler(s, dir, time.Second)
	eng := penalty.NewEngine(s, nopExpeller{}, n, time.Second)
	return &fixture{clock: clock, store: s, dir: dir, n: n, jobs: New(s, eng, r, n)}
}

func TestPublishToday(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	require.NoError(t, f.jobs.PublishToday(ctx))
	require.Len(t, f.n.announced, 1)
	assert.Contains(t, f.n.announced[0].Text, "topilmadi")

	_, err := f.store.CreateTask(ctx, f.clock.Day(0), "Read <Chapter 3>")
	require.NoError(t, err)
	require.NoError(t, f.jobs.PublishToday(ctx))
	require.Len(t, f.n.announced, 2)
	assert.Contains(t, f.n.announced[1].Text, "Read &lt;Chapter 3&gt;")
}

func TestRemindTonight_OnlyIncompleteMembers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	done, _, err := f.store.EnsureMember(ctx, "1", "done")
	require.NoError(t, err)
	_, _, err = f.store.EnsureMember(ctx, "2", "lazy")
	require.NoError(t, err)
	_, _, err = f.store.EnsureMember(ctx, "3", "departed")
	require.NoError(t, err)
	f.dir.members["1"] = roster.Member{ExternalID: "1"}
	f.dir.members["2"] = roster.Member{ExternalID: "2"}

	task, err := f.store.CreateTask(ctx, f.clock.Day(0), "t")
	require.NoError(t, err)
	_, err = f.store.MarkCompletion(ctx, done.ID, task.ID)
	require.NoError(t, err)

	require.NoError(t, f.jobs.RemindTonight(ctx))
	require.Len(t, f.n.notified, 1)
	assert.Equal(t, []string{"2"}, f.n.notified[0].to)
}

func TestRemindTonight_NoTask(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.jobs.RemindTonight(context.Background()))
	assert.Empty(t, f.n.notified)
}

func TestAdminEscalate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.dir.members["10"] = roster.Member{ExternalID: "10", IsAdmin: true}
	f.dir.members["11"] = roster.Member{ExternalID: "11"}

	require.NoError(t, f.jobs.AdminEscalate(ctx))
	require.Len(t, f.n.notified, 1)
	assert.Equal(t, []string{"10"}, f.n.notified[0].to)

	_, err := f.store.CreateTask(ctx, f.clock.Day(1), "tomorrow")
	require.NoError(t, err)
	require.NoError(t, f.jobs.AdminEscalate(ctx))
	assert.Len(t, f.n.notified, 1)
}

func TestApplyPenalties_UsesYesterday(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	u, _, err := f.store.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	task, err := f.store.CreateTask(ctx, f.clock.Day(0), "t")
	require.NoError(t, err)

	// 00:01 next day
	f.clock.Set(time.Date(2025, 6, 2, 0, 1, 0, 0, time.UTC))
	require.NoError(t, f.jobs.ApplyPenalties(ctx))

	c, err := f.store.FindCompletion(ctx, u.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePenaltyOpen, c.State())
}

func TestRegister(t *testing.T) {
	f := setup(t)
	schedule := config.DefaultSchedule("Asia/Tashkent")
	e := schedule[config.TriggerPostStatistics]
	e.Enabled = false
	schedule[config.TriggerPostStatistics] = e

	s := scheduler.New(time.Second)
	require.NoError(t, f.jobs.Register(s, schedule))
	assert.Len(t, s.Names(), 6)
	assert.NotContains(t, s.Names(), config.TriggerPostStatistics)

	schedule["publish-yesterday"] = config.ScheduleEntry{Cron: "0 6 * * *", Enabled: true}
	err := f.jobs.Register(scheduler.New(time.Second), schedule)
	assert.ErrorIs(t, err, scheduler.ErrUnknownTrigger)
}

func TestLeaderboard(t *testing.T) {
	msg := Leaderboard([]domain.User{
		{Name: "b", CurrentStreak: 3},
		{Name: "a", CurrentStreak: 12},
		{Name: "c", CurrentStreak: 3},
	}, 2)
	assert.Contains(t, msg.Text, "1. a: 12")
	assert.Contains(t, msg.Text, "2. b: 3")
	assert.NotContains(t, msg.Text, "c:")
}
