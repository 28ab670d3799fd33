package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Covenant/internal/domain"
	"github.com/shaiso/Covenant/internal/mq"
	"github.com/shaiso/Covenant/internal/repo"
)

// TaskCreator — операции над задачами, нужные планировщику.
type TaskCreator interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Task, error)
}

// ScheduleStore — операции над schedules.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, s *domain.Schedule) error
}

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	schedules ScheduleStore
	tasks     TaskCreator
	publisher *mq.Publisher
	logger    *slog.Logger
	batchSize int
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Tasks     TaskCreator
	Publisher *mq.Publisher
	Logger    *slog.Logger
	BatchSize int // количество schedules за один тик (default: 100)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		schedules: cfg.Schedules,
		tasks:     cfg.Tasks,
		publisher: cfg.Publisher,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Run выполняет тики с заданным периодом до отмены контекста.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого schedule создаёт задачу
// 3. Обновляет next_due_at
// 4. Публикует task.pending в RabbitMQ
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var processed, created int
	for i := range schedules {
		sched := &schedules[i]

		taskCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}

		processed++
		if taskCreated {
			created++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"tasks_created", created,
	)

	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если задача была создана (не была дубликатом).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	// Idempotency key "{schedule_id}_{next_due_at_unix}": для одного
	// schedule и конкретного времени создаётся только одна задача.
	idempKey := fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())

	existing, err := s.tasks.GetByIdempotencyKey(ctx, idempKey)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return false, fmt.Errorf("check idempotency: %w", err)
	}

	var taskCreated bool
	var taskID uuid.UUID

	if existing != nil {
		s.logger.Debug("task already exists (idempotency)",
			"schedule_id", sched.ID,
			"task_id", existing.ID,
			"idempotency_key", idempKey,
		)
		taskID = existing.ID
	} else {
		task := &domain.Task{
			ID:             uuid.New(),
			WorkflowType:   sched.WorkflowType,
			Company:        sched.Company,
			Policy:         sched.Policy,
			Status:         domain.TaskStatusPending,
			IdempotencyKey: idempKey,
			CreatedAt:      now,
		}

		if err := s.tasks.Create(ctx, task); err != nil {
			// Гонка с другим экземпляром планировщика: задача уже есть.
			if errors.Is(err, repo.ErrDuplicate) {
				return false, nil
			}
			return false, fmt.Errorf("create task: %w", err)
		}

		s.logger.Info("created task from schedule",
			"task_id", task.ID,
			"schedule_id", sched.ID,
			"schedule_name", sched.Name,
			"workflow_type", sched.WorkflowType,
		)

		taskID = task.ID
		taskCreated = true
	}

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		s.logger.Error("failed to calculate next due, leaving schedule as is",
			"schedule_id", sched.ID,
			"error", err,
		)
		return taskCreated, nil
	}

	sched.RecordRun(taskID, nextDue)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return taskCreated, fmt.Errorf("update schedule: %w", err)
	}

	if s.publisher != nil && taskCreated {
		if err := s.publisher.PublishTaskPending(ctx, taskID); err != nil {
			// Не фатальная ошибка: dispatcher заберёт задачу polling'ом.
			s.logger.Warn("failed to publish task.pending",
				"task_id", taskID,
				"error", err,
			)
		}
	}

	return taskCreated, nil
}
