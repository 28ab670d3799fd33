package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Covenant/internal/domain"
	"github.com/shaiso/Covenant/internal/durable"
	"github.com/shaiso/Covenant/internal/mq"
	"github.com/shaiso/Covenant/internal/orchestrator"
	"github.com/shaiso/Covenant/internal/telemetry"
)

// TaskStore — операции над задачами, нужные dispatcher.
type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	ListPending(ctx context.Context, limit int) ([]domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
}

// InstanceResumer — источник instances для восстановления после рестарта.
type InstanceResumer interface {
	ListNonTerminal(ctx context.Context) ([]durable.InstanceRecord, error)
}

// Dispatcher запускает orchestration instances для входящих задач.
type Dispatcher struct {
	runtime    *durable.Runtime
	saga       *orchestrator.Saga
	controller *orchestrator.Controller
	tasks      TaskStore
	resumer    InstanceResumer
	conn       *mq.Connection
	publisher  *mq.Publisher
	logger     *slog.Logger

	pollInterval time.Duration
	pollBatch    int
}

// Config — конфигурация Dispatcher.
type Config struct {
	// Runtime — durable runtime instances.
	Runtime *durable.Runtime

	// Saga — тело оркестрации.
	Saga *orchestrator.Saga

	// Controller — операторская поверхность circuit breakers.
	Controller *orchestrator.Controller

	// Tasks — репозиторий задач.
	Tasks TaskStore

	// Resumer — источник незавершённых instances; nil отключает
	// восстановление (in-memory запуск).
	Resumer InstanceResumer

	// Conn и Publisher — RabbitMQ; nil переводит dispatcher
	// в режим чистого polling.
	Conn      *mq.Connection
	Publisher *mq.Publisher

	// Logger — структурный логгер; по умолчанию slog.Default.
	Logger *slog.Logger

	// PollInterval — период опроса PENDING-задач; по умолчанию 5s.
	PollInterval time.Duration

	// PollBatch — размер пачки опроса; по умолчанию 50.
	PollBatch int
}

// New создаёт Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	pollBatch := cfg.PollBatch
	if pollBatch <= 0 {
		pollBatch = 50
	}

	return &Dispatcher{
		runtime:      cfg.Runtime,
		saga:         cfg.Saga,
		controller:   cfg.Controller,
		tasks:        cfg.Tasks,
		resumer:      cfg.Resumer,
		conn:         cfg.Conn,
		publisher:    cfg.Publisher,
		logger:       logger,
		pollInterval: pollInterval,
		pollBatch:    pollBatch,
	}
}

// Run запускает dispatcher: восстановление instances, consumers
// и polling-цикл. Блокируется до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.resumeInstances(ctx); err != nil {
		return fmt.Errorf("resume instances: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if d.conn != nil {
		pending := mq.NewConsumer(d.conn, d.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueTasksPending),
			Handler:  d.handleTaskMessage,
			Prefetch: d.pollBatch,
		})
		g.Go(func() error { return ignoreCanceled(pending.Start(ctx)) })

		reset := mq.NewConsumer(d.conn, d.logger, mq.ConsumerConfig{
			Queue:   string(mq.QueueSignalsReset),
			Handler: d.handleResetMessage,
		})
		g.Go(func() error { return ignoreCanceled(reset.Start(ctx)) })
	}

	g.Go(func() error { return ignoreCanceled(d.pollLoop(ctx)) })

	return g.Wait()
}

// resumeInstances восстанавливает незавершённые instances из
// хранилища: каждый replay'ится по журналу до точки прерывания.
func (d *Dispatcher) resumeInstances(ctx context.Context) error {
	if d.resumer == nil {
		return nil
	}

	records, err := d.resumer.ListNonTerminal(ctx)
	if err != nil {
		return err
	}

	for i := range records {
		rec := records[i]
		if err := d.runtime.Resume(ctx, &rec, d.saga.Orchestrate); err != nil {
			if errors.Is(err, durable.ErrInstanceAlreadyExists) {
				continue
			}
			return err
		}

		data, err := domain.OrchDataFromMap(rec.Input)
		if err != nil {
			d.logger.Error("resumed instance has invalid input",
				"instance_id", rec.ID.String(),
				"error", err,
			)
			continue
		}
		go d.finalize(ctx, data.TaskID, rec.ID)
	}

	if len(records) > 0 {
		d.logger.Info("resumed non-terminal instances", "count", len(records))
	}
	return nil
}

// pollLoop подстраховочно опрашивает PENDING-задачи: сообщение могло
// потеряться до публикации или очередь недоступна.
func (d *Dispatcher) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.dispatchPending(ctx); err != nil {
				d.logger.Error("failed to dispatch pending tasks", "error", err)
			}
		}
	}
}

// dispatchPending запускает instances для пачки PENDING-задач.
func (d *Dispatcher) dispatchPending(ctx context.Context) error {
	tasks, err := d.tasks.ListPending(ctx, d.pollBatch)
	if err != nil {
		return err
	}

	for i := range tasks {
		if err := d.dispatch(ctx, &tasks[i]); err != nil {
			d.logger.Error("failed to dispatch task",
				"task_id", tasks[i].ID.String(),
				"error", err,
			)
		}
	}
	return nil
}

// handleTaskMessage обрабатывает сообщение tasks.pending.
func (d *Dispatcher) handleTaskMessage(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskPendingPayload](&delivery.Message)
	if err != nil {
		// Некорректный payload ретраить бессмысленно.
		d.logger.Error("invalid task.pending payload", "error", err)
		return mq.ErrDrop
	}

	task, err := d.tasks.GetByID(ctx, payload.TaskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", payload.TaskID, err)
	}

	return d.dispatch(ctx, task)
}

// handleResetMessage обрабатывает операторский сигнал сброса breaker.
func (d *Dispatcher) handleResetMessage(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.CircuitResetPayload](&delivery.Message)
	if err != nil {
		d.logger.Error("invalid circuit.reset payload", "error", err)
		return mq.ErrDrop
	}

	wt, err := domain.ParseWorkflowType(payload.WorkflowType)
	if err != nil {
		d.logger.Error("circuit.reset for unknown workflow type",
			"workflow_type", payload.WorkflowType,
		)
		return mq.ErrDrop
	}

	resumed, err := d.controller.ResetCircuit(ctx, wt)
	if err != nil {
		return fmt.Errorf("reset circuit %s: %w", wt, err)
	}

	d.logger.Info("circuit reset signal handled",
		"workflow_type", wt,
		"resumed_instances", resumed,
	)
	return nil
}

// dispatch запускает orchestration instance для задачи.
//
// Идентификатор instance равен идентификатору задачи: повторная
// доставка сообщения или гонка с polling-циклом упираются
// в ErrInstanceAlreadyExists и не порождают второй instance.
func (d *Dispatcher) dispatch(ctx context.Context, task *domain.Task) error {
	if task.Status != domain.TaskStatusPending {
		return nil
	}

	instanceID := task.ID
	input := task.OrchData().ToMap()

	err := d.runtime.Start(ctx, instanceID, string(task.WorkflowType), d.saga.Orchestrate, input)
	if errors.Is(err, durable.ErrInstanceAlreadyExists) {
		// Instance уже заявлен: гонка polling/MQ внутри процесса или
		// задача осталась PENDING после сбоя Update в прошлой жизни.
		// Доводим задачу до терминала по фактическому исходу instance.
		go d.finalize(ctx, task.ID, instanceID)
		return nil
	}
	if err != nil {
		return err
	}

	task.MarkRunning(instanceID)
	if err := d.tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("mark task running: %w", err)
	}

	log := telemetry.WithWorkflowType(
		telemetry.WithTaskID(d.logger, task.ID.String()),
		string(task.WorkflowType),
	)
	log.Info("task dispatched")

	go d.finalize(ctx, task.ID, instanceID)
	return nil
}

// finalize дожидается завершения instance и фиксирует итог задачи.
func (d *Dispatcher) finalize(ctx context.Context, taskID, instanceID uuid.UUID) {
	log := telemetry.WithInstanceID(
		telemetry.WithTaskID(d.logger, taskID.String()),
		instanceID.String(),
	)

	info, err := d.runtime.Await(ctx, instanceID)
	if err != nil {
		if ctx.Err() != nil {
			// Остановка процесса: instance восстановится после рестарта.
			return
		}
		// Instance не загружен в этот процесс — судим по записи
		// хранилища (instance завершился в прошлой жизни процесса
		// или в другой реплике).
		info, err = d.runtime.Get(ctx, instanceID)
		if err != nil {
			log.Error("failed to load instance for finalize", "error", err)
			return
		}
	}
	if !info.Status.IsTerminal() {
		return
	}

	task, err := d.tasks.GetByID(ctx, taskID)
	if err != nil {
		log.Error("failed to load task for finalize", "error", err)
		return
	}
	if task.IsFinished() {
		return
	}

	telemetry.InstancesCompleted.WithLabelValues(string(info.Status)).Inc()

	// Задача, усыновлённая в обход dispatch, могла не пройти MarkRunning.
	if task.InstanceID == nil {
		task.InstanceID = &instanceID
	}
	if info.Status == durable.InstanceSucceeded {
		task.MarkSucceeded(info.Output)
	} else {
		task.MarkFailed(info.Error)
	}

	if err := d.tasks.Update(ctx, task); err != nil {
		log.Error("failed to finalize task", "error", err)
		return
	}

	if d.publisher != nil {
		payload := mq.TaskCompletedPayload{
			TaskID:       taskID,
			InstanceID:   instanceID,
			WorkflowType: string(task.WorkflowType),
			Status:       string(task.Status),
			Error:        task.Error,
		}
		if err := d.publisher.PublishTaskCompleted(ctx, payload); err != nil {
			log.Error("failed to publish task.completed", "error", err)
		}
	}

	log.Info("task finalized",
		"status", task.Status,
		"duration", task.Duration(),
	)
}

// ignoreCanceled глушит штатную отмену контекста при shutdown.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
