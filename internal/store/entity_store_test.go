package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bookworms/internal/domain"
	"bookworms/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestCreateTask_OnePerDay(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	task, err := s.CreateTask(ctx, clock.Day(0), "  Read chapter 1 ")
	require.NoError(t, err)
	assert.Equal(t, "Read chapter 1", task.Description)
	assert.Equal(t, "2025-03-10", task.DateString())

	_, err = s.CreateTask(ctx, clock.Day(0), "again")
	assert.ErrorIs(t, err, domain.ErrDuplicateDate)

	_, err = s.CreateTask(ctx, clock.Day(-1), "yesterday")
	assert.ErrorIs(t, err, domain.ErrPastDate)

	found, err := s.FindTaskForDate(ctx, clock.Day(0))
	require.NoError(t, err)
	assert.Equal(t, task.ID, found.ID)

	_, err = s.FindTaskForDate(ctx, clock.Day(1))
	assert.ErrorIs(t, err, domain.ErrNoSuchTask)
}

func TestCreateTask_BackfillsEveryUser(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	for i := 1; i <= 5; i++ {
		_, err := s.UpsertUser(ctx, fmt.Sprint(1000+i), fmt.Sprintf("user%d", i))
		require.NoError(t, err)
	}

	task, err := s.CreateTask(ctx, clock.Day(1), "tomorrow")
	require.NoError(t, err)

	rows, err := s.ListCompletionsForTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for _, c := range rows {
		assert.Equal(t, domain.StatePending, c.State())
	}
}

func TestEnsureMember_BackfillsExistingTasksOnce(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	_, err := s.CreateTask(ctx, clock.Day(0), "a")
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, clock.Day(1), "b")
	require.NoError(t, err)

	u, created, err := s.EnsureMember(ctx, "42", "Ali")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.EnsureMember(ctx, "42", "Renamed")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Ali", again.Name)

	h, err := s.UserHistory(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, h.Completions, 2)

	renamed, err := s.UpsertUser(ctx, "42", "Vali")
	require.NoError(t, err)
	assert.Equal(t, "Vali", renamed.Name)
	assert.Equal(t, u.ID, renamed.ID)
}

func TestMarkCompletion_Twice(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, clock.Day(0), "today")
	require.NoError(t, err)

	res, err := s.MarkCompletion(ctx, u.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.True(t, res.Completion.Completed)
	assert.NotNil(t, res.Completion.CompletedAt)

	_, err = s.MarkCompletion(ctx, u.ID, task.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)

	got, err := s.FindUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStreak)
}

func TestMarkCompletion_OnlyToday(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	future, err := s.CreateTask(ctx, clock.Day(2), "later")
	require.NoError(t, err)

	_, err = s.MarkCompletion(ctx, u.ID, future.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotOpen)

	_, err = s.MarkCompletion(ctx, u.ID, 9999)
	assert.ErrorIs(t, err, domain.ErrNoSuchTask)

	_, err = s.MarkCompletion(ctx, 9999, future.ID)
	assert.ErrorIs(t, err, domain.ErrNoSuchUser)
}

func TestStreak_ConsecutiveDays(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	d1, err := s.CreateTask(ctx, clock.Day(0), "d1")
	require.NoError(t, err)
	d2, err := s.CreateTask(ctx, clock.Day(1), "d2")
	require.NoError(t, err)

	res, err := s.MarkCompletion(ctx, u.ID, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)

	clock.AddDays(1)
	res, err = s.MarkCompletion(ctx, u.ID, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak)
}

func TestStreak_DayWithoutTaskDoesNotBreak(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	d1, err := s.CreateTask(ctx, clock.Day(0), "d1")
	require.NoError(t, err)
	d3, err := s.CreateTask(ctx, clock.Day(2), "d3")
	require.NoError(t, err)

	_, err = s.MarkCompletion(ctx, u.ID, d1.ID)
	require.NoError(t, err)

	clock.AddDays(2)
	res, err := s.MarkCompletion(ctx, u.ID, d3.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak)
}

func TestStreak_MissedDayRestarts(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	d1, err := s.CreateTask(ctx, clock.Day(0), "d1")
	require.NoError(t, err)
	d2, err := s.CreateTask(ctx, clock.Day(1), "d2")
	require.NoError(t, err)
	d3, err := s.CreateTask(ctx, clock.Day(2), "d3")
	require.NoError(t, err)

	_, err = s.MarkCompletion(ctx, u.ID, d1.ID)
	require.NoError(t, err)

	// d2 is missed; the nightly scan runs on day 3.
	clock.AddDays(2)
	applied, err := s.ApplyPenalty(ctx, u.ID, d2.ID)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.FindUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentStreak)

	res, err := s.MarkCompletion(ctx, u.ID, d3.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
}

func TestApplyPenalty_KeepsCompletionMadeBeforeScan(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	d1, err := s.CreateTask(ctx, clock.Day(0), "d1")
	require.NoError(t, err)
	d2, err := s.CreateTask(ctx, clock.Day(1), "d2")
	require.NoError(t, err)

	// d1 missed, d2 completed just after midnight before the scan for d1 ran.
	clock.AddDays(1)
	res, err := s.MarkCompletion(ctx, u.ID, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)

	_, err = s.ApplyPenalty(ctx, u.ID, d1.ID)
	require.NoError(t, err)

	got, err := s.FindUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStreak)
}

func TestApplyPenalty_Idempotent(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	done, _, err := s.EnsureMember(ctx, "2", "b")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, clock.Day(0), "d1")
	require.NoError(t, err)
	_, err = s.MarkCompletion(ctx, done.ID, task.ID)
	require.NoError(t, err)

	clock.AddDays(1)
	applied, err := s.ApplyPenalty(ctx, u.ID, task.ID)
	require.NoError(t, err)
	assert.True(t, applied)

	first, err := s.FindCompletion(ctx, u.ID, task.ID)
	require.NoError(t, err)
	require.NotNil(t, first.PenaltyAppliedAt)

	clock.AddDays(1)
	applied, err = s.ApplyPenalty(ctx, u.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, applied)

	second, err := s.FindCompletion(ctx, u.ID, task.ID)
	require.NoError(t, err)
	assert.True(t, first.PenaltyAppliedAt.Equal(*second.PenaltyAppliedAt))
	assert.Equal(t, domain.StatePenaltyOpen, second.State())

	applied, err = s.ApplyPenalty(ctx, done.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, applied, "completed rows never get a penalty")
}

func TestSettlePenalties(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	d1, err := s.CreateTask(ctx, clock.Day(0), "d1")
	require.NoError(t, err)
	d2, err := s.CreateTask(ctx, clock.Day(1), "d2")
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, clock.Day(2), "d3")
	require.NoError(t, err)

	clock.AddDays(2)
	for _, task := range []*domain.Task{d1, d2} {
		_, err := s.ApplyPenalty(ctx, u.ID, task.ID)
		require.NoError(t, err)
	}

	debtors, err := s.ListDebtors(ctx, clock.Day(0))
	require.NoError(t, err)
	require.Len(t, debtors, 1)

	n, err := s.SettlePenalties(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.SettlePenalties(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	c, err := s.FindCompletion(ctx, u.ID, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePenaltySettled, c.State())

	debtors, err = s.ListDebtors(ctx, clock.Day(0))
	require.NoError(t, err)
	assert.Empty(t, debtors)

	_, err = s.SettlePenalties(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrNoSuchUser)
}

func TestListDebtors_RespectsCutoff(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, clock.Day(0), "d1")
	require.NoError(t, err)

	clock.AddDays(1)
	_, err = s.ApplyPenalty(ctx, u.ID, task.ID)
	require.NoError(t, err)

	debtors, err := s.ListDebtors(ctx, task.ScheduledDate)
	require.NoError(t, err)
	assert.Empty(t, debtors, "a penalty on the cutoff day itself is not overdue")

	overdue, err := s.HasOverduePenalty(ctx, u.ID, task.ScheduledDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, overdue)
}

func TestUpdateAndDeleteTask(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	_, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	today, err := s.CreateTask(ctx, clock.Day(0), "today")
	require.NoError(t, err)
	later, err := s.CreateTask(ctx, clock.Day(3), "later")
	require.NoError(t, err)

	_, err = s.UpdateTask(ctx, later.ID, clock.Day(0), "clash")
	assert.ErrorIs(t, err, domain.ErrDuplicateDate)

	_, err = s.UpdateTask(ctx, later.ID, clock.Day(-1), "past")
	assert.ErrorIs(t, err, domain.ErrPastDate)

	moved, err := s.UpdateTask(ctx, later.ID, clock.Day(4), "moved")
	require.NoError(t, err)
	assert.Equal(t, "moved", moved.Description)
	assert.True(t, moved.ScheduledDate.Equal(clock.Day(4)))

	_, err = s.UpdateTask(ctx, 9999, clock.Day(5), "x")
	assert.ErrorIs(t, err, domain.ErrNoSuchTask)

	clock.AddDays(1)
	_, err = s.UpdateTask(ctx, today.ID, clock.Day(2), "rewrite history")
	assert.ErrorIs(t, err, domain.ErrPastDate)
	_, err = s.DeleteTask(ctx, today.ID)
	assert.ErrorIs(t, err, domain.ErrPastDate)

	deleted, err := s.DeleteTask(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, later.ID, deleted.ID)

	_, err = s.ListCompletionsForTask(ctx, later.ID)
	assert.ErrorIs(t, err, domain.ErrNoSuchTask)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestDeleteUser_Cascades(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "77", "a")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, clock.Day(0), "d1")
	require.NoError(t, err)

	_, err = s.DeleteUserByExternalID(ctx, "77")
	require.NoError(t, err)

	_, err = s.FindCompletion(ctx, u.ID, task.ID)
	assert.ErrorIs(t, err, domain.ErrNoSuchCompletion)
	rows, err := s.ListCompletionsForTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = s.DeleteUser(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrNoSuchUser)
}

func TestStreakMatchesHistory(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)

	// day offset -> completed? ; offsets without an entry have no task
	plan := map[int]bool{0: true, 1: true, 3: true, 4: false, 5: true, 6: true, 8: true}
	tasks := map[int]*domain.Task{}
	for d := range plan {
		task, err := s.CreateTask(ctx, clock.Day(d), fmt.Sprint("day ", d))
		require.NoError(t, err)
		tasks[d] = task
	}

	for d := 0; d <= 8; d++ {
		// nightly scan for yesterday
		if prev, ok := tasks[d-1]; ok && !plan[d-1] {
			_, err := s.ApplyPenalty(ctx, u.ID, prev.ID)
			require.NoError(t, err)
		}
		if plan[d] {
			_, err := s.MarkCompletion(ctx, u.ID, tasks[d].ID)
			require.NoError(t, err)
		}
		clock.AddDays(1)
	}

	got, err := s.FindUser(ctx, u.ID)
	require.NoError(t, err)
	// completed on 5, 6 and 8 with no task on 7
	assert.Equal(t, 3, got.CurrentStreak)
}

func TestCompletedTaskKeepsItsDay(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	_, _, err = s.EnsureMember(ctx, "2", "b")
	require.NoError(t, err)
	today, err := s.CreateTask(ctx, clock.Day(0), "today")
	require.NoError(t, err)

	res, err := s.MarkCompletion(ctx, u.ID, today.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Streak)

	_, err = s.DeleteTask(ctx, today.ID)
	assert.ErrorIs(t, err, domain.ErrTaskHasProgress)
	_, err = s.UpdateTask(ctx, today.ID, clock.Day(1), "tomorrow instead")
	assert.ErrorIs(t, err, domain.ErrTaskHasProgress)

	edited, err := s.UpdateTask(ctx, today.ID, clock.Day(0), "today, reworded")
	require.NoError(t, err)
	assert.Equal(t, "today, reworded", edited.Description)

	got, err := s.FindUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStreak)
	rows, err := s.ListCompletionsForTask(ctx, today.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestApplyPenalty_UserGone(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	s := storetest.Open(t, clock)

	u, _, err := s.EnsureMember(ctx, "1", "a")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, clock.Day(0), "today")
	require.NoError(t, err)
	_, err = s.DeleteUser(ctx, u.ID)
	require.NoError(t, err)

	clock.AddDays(1)
	applied, err := s.ApplyPenalty(ctx, u.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, applied)
}
