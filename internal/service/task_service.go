package service

import (
	"context"
	"html"
	"log/slog"
	"time"

	"bookworms/internal/calendar"
	"bookworms/internal/domain"
	"bookworms/internal/logger"
	"bookworms/internal/notify"
	"bookworms/internal/store"
)

// TaskService manages the task calendar for the admin panel. Changes to today's
// task made after the publish hour are announced to the group right away, since
// the morning announcement has already gone out.
type TaskService struct {
	store       *store.EntityStore
	cal         *calendar.Calendar
	announcer   Announcer
	events      EventPublisher
	publishHour int
	log         *slog.Logger
}

// NewTaskService creates a task service. announcer and events may be nil.
func NewTaskService(s *store.EntityStore, announcer Announcer, events EventPublisher, publishHour int) *TaskService {
	return &TaskService{
		store:       s,
		cal:         s.Calendar(),
		announcer:   announcer,
		events:      orNop(events),
		publishHour: publishHour,
		log:         logger.With("component", "tasks"),
	}
}

// List returns every task, oldest date first.
func (s *TaskService) List(ctx context.Context) ([]domain.Task, error) {
	return s.store.ListTasks(ctx)
}

// Get returns one task.
func (s *TaskService) Get(ctx context.Context, id int64) (*domain.Task, error) {
	return s.store.FindTask(ctx, id)
}

// Create schedules a task for date.
func (s *TaskService) Create(ctx context.Context, date time.Time, description string) (*domain.Task, error) {
	task, err := s.store.CreateTask(ctx, date, description)
	if err != nil {
		return nil, err
	}
	s.log.Info("task created", "task_id", task.ID, "date", task.DateString())
	s.events.Publish(taskEvent(domain.EventTaskCreated, task))

	if s.shouldAnnounce(task.ScheduledDate) {
		s.announce(ctx, TaskCreatedMessage(task))
	}
	return task, nil
}

// Update changes a task. Moving today's task away is announced as well.
func (s *TaskService) Update(ctx context.Context, id int64, date time.Time, description string) (*domain.Task, error) {
	before, err := s.store.FindTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task, err := s.store.UpdateTask(ctx, id, date, description)
	if err != nil {
		return nil, err
	}
	s.log.Info("task updated", "task_id", task.ID, "date", task.DateString())
	s.events.Publish(taskEvent(domain.EventTaskUpdated, task))

	if s.shouldAnnounce(task.ScheduledDate) || s.shouldAnnounce(before.ScheduledDate) {
		s.announce(ctx, TaskUpdatedMessage(task))
	}
	return task, nil
}

// Delete removes a task together with its completion rows.
func (s *TaskService) Delete(ctx context.Context, id int64) (*domain.Task, error) {
	task, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("task deleted", "task_id", task.ID, "date", task.DateString())
	s.events.Publish(taskEvent(domain.EventTaskDeleted, task))

	if s.shouldAnnounce(task.ScheduledDate) {
		s.announce(ctx, TaskDeletedMessage(task))
	}
	return task, nil
}

// Completions lists the per-user rows of a task.
func (s *TaskService) Completions(ctx context.Context, id int64) ([]domain.TaskCompletion, error) {
	return s.store.ListCompletionsForTask(ctx, id)
}

func (s *TaskService) shouldAnnounce(day time.Time) bool {
	return s.cal.IsToday(day) && s.cal.LocalNow().Hour() >= s.publishHour
}

// announce runs after the commit; a failed post is logged and never undoes the change.
func (s *TaskService) announce(ctx context.Context, msg notify.Message) {
	if s.announcer == nil {
		return
	}
	if err := s.announcer.Announce(ctx, msg); err != nil {
		s.log.Warn("task announcement failed", "error", err)
	}
}

func taskEvent(typ string, task *domain.Task) domain.Event {
	return domain.NewEvent(typ, map[string]any{
		"task_id":     task.ID,
		"date":        task.DateString(),
		"description": task.Description,
	})
}

// TaskCreatedMessage is posted when today's task is added after the publish hour.
func TaskCreatedMessage(task *domain.Task) notify.Message {
	return notify.Text("📋 <b>Yangi vazifa qo'shildi!</b>\n\n📅 <b>Sana:</b> %s\n📝 <b>Vazifa:</b> %s\n\nVazifani belgilash uchun /vazifa buyrug'idan foydalaning!",
		task.DateString(), html.EscapeString(task.Description))
}

// TaskUpdatedMessage is posted when today's task changes after the publish hour.
func TaskUpdatedMessage(task *domain.Task) notify.Message {
	return notify.Text("✏️ <b>Vazifa yangilandi!</b>\n\n📅 <b>Sana:</b> %s\n📝 <b>Yangi vazifa:</b> %s\n\nYangilangan vazifani belgilash uchun /vazifa buyrug'idan foydalaning!",
		task.DateString(), html.EscapeString(task.Description))
}

// TaskDeletedMessage is posted when today's task is removed after the publish hour.
func TaskDeletedMessage(task *domain.Task) notify.Message {
	return notify.Text("🗑️ <b>Vazifa o'chirildi!</b>\n\n📅 <b>Sana:</b> %s\n📝 <b>O'chirilgan vazifa:</b> %s",
		task.DateString(), html.EscapeString(task.Description))
}
