package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Covenant/internal/domain"
	"github.com/shaiso/Covenant/internal/repo"
)

// memTasks stores created tasks keyed by idempotency key.
type memTasks struct {
	byKey map[string]*domain.Task
}

func newMemTasks() *memTasks {
	return &memTasks{byKey: make(map[string]*domain.Task)}
}

func (m *memTasks) Create(_ context.Context, task *domain.Task) error {
	if _, ok := m.byKey[task.IdempotencyKey]; ok {
		return repo.ErrDuplicate
	}
	m.byKey[task.IdempotencyKey] = task
	return nil
}

func (m *memTasks) GetByIdempotencyKey(_ context.Context, key string) (*domain.Task, error) {
	task, ok := m.byKey[key]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return task, nil
}

// memSchedules serves a fixed due list and records updates.
type memSchedules struct {
	due     []domain.Schedule
	updated []*domain.Schedule
}

func (m *memSchedules) ListDue(_ context.Context, _ time.Time, _ int) ([]domain.Schedule, error) {
	return m.due, nil
}

func (m *memSchedules) Update(_ context.Context, s *domain.Schedule) error {
	m.updated = append(m.updated, s)
	return nil
}

func dueSchedule() domain.Schedule {
	return domain.Schedule{
		ID:           uuid.New(),
		Name:         "acme-privacy-hourly",
		WorkflowType: domain.WorkflowMeta,
		Company:      "acme",
		Policy:       "privacy",
		IntervalSec:  3600,
		Timezone:     "UTC",
		Enabled:      true,
		NextDueAt:    time.Now().Add(-time.Minute),
	}
}

func testScheduler(schedules ScheduleStore, tasks TaskCreator) *Scheduler {
	return New(Config{
		Schedules: schedules,
		Tasks:     tasks,
		Logger:    slog.New(slog.DiscardHandler),
	})
}

func TestTick_CreatesTaskAndAdvancesSchedule(t *testing.T) {
	tasks := newMemTasks()
	schedules := &memSchedules{due: []domain.Schedule{dueSchedule()}}
	s := testScheduler(schedules, tasks)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(tasks.byKey) != 1 {
		t.Fatalf("created tasks = %d, want 1", len(tasks.byKey))
	}
	for _, task := range tasks.byKey {
		if task.WorkflowType != domain.WorkflowMeta {
			t.Errorf("workflow type = %s, want meta", task.WorkflowType)
		}
		if task.Company != "acme" || task.Policy != "privacy" {
			t.Errorf("task document = %s/%s", task.Company, task.Policy)
		}
		if task.Status != domain.TaskStatusPending {
			t.Errorf("status = %s, want PENDING", task.Status)
		}
	}

	if len(schedules.updated) != 1 {
		t.Fatalf("updated schedules = %d, want 1", len(schedules.updated))
	}
	upd := schedules.updated[0]
	if !upd.NextDueAt.After(time.Now()) {
		t.Errorf("next due = %v, should move into the future", upd.NextDueAt)
	}
	if upd.LastTaskID == nil {
		t.Error("last task id should be recorded")
	}
}

func TestTick_IdempotentAcrossRepeats(t *testing.T) {
	tasks := newMemTasks()
	sched := dueSchedule()

	// The same due schedule is served twice without the update taking
	// effect (e.g. the first update was lost): only one task appears.
	schedules := &memSchedules{due: []domain.Schedule{sched}}
	s := testScheduler(schedules, tasks)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("first tick failed: %v", err)
	}
	schedules.due = []domain.Schedule{sched}
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}

	if len(tasks.byKey) != 1 {
		t.Errorf("created tasks = %d, want 1 (idempotency key blocks the duplicate)", len(tasks.byKey))
	}
}

func TestTick_EmptyDueList(t *testing.T) {
	s := testScheduler(&memSchedules{}, newMemTasks())

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
}
