package durable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Orchestration — детерминированная функция instance. Все side-effect'ы
// проходят через Context; собственное состояние функции живёт только
// в локальных переменных.
type Orchestration func(ctx *Context, input map[string]string) (map[string]any, error)

// ActivityInvoker выполняет activities по имени.
type ActivityInvoker interface {
	Invoke(ctx context.Context, name string, input map[string]any) (map[string]any, error)
}

// EntityCaller выполняет операции durable entities.
type EntityCaller interface {
	Call(ctx context.Context, entity, key, op string, input any) (any, error)
}

// Runtime управляет жизненным циклом orchestration instances:
// запуск, replay после рестарта, доставка событий, персистенция.
type Runtime struct {
	store      InstanceStore
	entities   EntityCaller
	activities ActivityInvoker
	logger     *slog.Logger

	mu        sync.RWMutex
	instances map[uuid.UUID]*instance

	wg sync.WaitGroup
}

// Config — конфигурация Runtime.
type Config struct {
	// Store — хранилище instances; по умолчанию in-memory.
	Store InstanceStore

	// Entities — host durable entities.
	Entities EntityCaller

	// Activities — реестр activities.
	Activities ActivityInvoker

	// Logger — структурный логгер; по умолчанию slog.Default.
	Logger *slog.Logger
}

// New создаёт Runtime.
func New(cfg Config) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := cfg.Store
	if store == nil {
		store = NewMemoryInstanceStore()
	}

	return &Runtime{
		store:      store,
		entities:   cfg.Entities,
		activities: cfg.Activities,
		logger:     logger,
		instances:  make(map[uuid.UUID]*instance),
	}
}

// Start запускает новый instance с пустым журналом.
//
// Instance сначала заявляется в хранилище (условная вставка):
// повторный запуск того же ID после рестарта процесса или из другой
// реплики возвращает ErrInstanceAlreadyExists, не затирая журнал.
func (rt *Runtime) Start(ctx context.Context, id uuid.UUID, workflowType string, fn Orchestration, input map[string]string) error {
	inst := newInstance(id, workflowType, input)

	if err := rt.register(inst); err != nil {
		return err
	}

	if err := rt.store.Create(ctx, inst.record(nil)); err != nil {
		rt.unregister(id)
		if errors.Is(err, ErrInstanceAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrInstanceAlreadyExists, id)
		}
		return fmt.Errorf("persist new instance: %w", err)
	}

	rt.logger.Info("instance started",
		"instance_id", id.String(),
		"workflow_type", workflowType,
	)

	rt.wg.Add(1)
	go rt.run(ctx, inst, fn, nil)
	return nil
}

// Resume восстанавливает instance из персистентной записи: функция
// выполняется с начала, мемоизированные результаты возвращаются из
// журнала, живое исполнение продолжается с точки прерывания.
// Терминальные записи игнорируются.
func (rt *Runtime) Resume(ctx context.Context, rec *InstanceRecord, fn Orchestration) error {
	if rec.Status.IsTerminal() {
		return nil
	}

	inst := newInstance(rec.ID, rec.WorkflowType, rec.Input)
	inst.createdAt = rec.CreatedAt
	inst.customStatus = rec.CustomStatus

	if err := rt.register(inst); err != nil {
		return err
	}

	rt.logger.Info("instance resumed",
		"instance_id", rec.ID.String(),
		"workflow_type", rec.WorkflowType,
		"journal_entries", len(rec.Journal),
	)

	rt.wg.Add(1)
	go rt.run(ctx, inst, fn, rec.Journal)
	return nil
}

// run исполняет orchestration-функцию до терминального состояния,
// перезапуская её с пустым журналом при continue-as-new.
func (rt *Runtime) run(ctx context.Context, inst *instance, fn Orchestration, journal []Entry) {
	defer rt.wg.Done()

	for {
		c := &Context{hostCtx: ctx, rt: rt, inst: inst, journal: journal}

		output, err := invoke(c, fn, inst.input)

		if errors.Is(err, ErrContinueAsNew) {
			journal = nil
			inst.setStatus(InstanceRunning)
			inst.setCustomStatus("")
			rt.logger.Info("instance continued as new", "instance_id", inst.id.String())
			continue
		}

		// Остановка хоста — не исход orchestration: терминальный
		// статус не фиксируется, запись в хранилище остаётся
		// нетерминальной, и после рестарта Resume вернёт исполнение
		// в точку прерывания.
		if errors.Is(err, ErrShutdown) {
			rt.logger.Info("instance interrupted by shutdown",
				"instance_id", inst.id.String(),
				"workflow_type", inst.workflowType,
			)
			return
		}

		var errMsg string
		if err != nil {
			errMsg = err.Error()
		}
		inst.finish(output, errMsg)

		if perr := rt.store.Save(ctx, inst.record(c.journal)); perr != nil {
			rt.logger.Warn("failed to persist terminal instance",
				"instance_id", inst.id.String(),
				"error", perr,
			)
		}

		if err != nil {
			rt.logger.Error("instance failed",
				"instance_id", inst.id.String(),
				"workflow_type", inst.workflowType,
				"error", errMsg,
			)
		} else {
			rt.logger.Info("instance succeeded",
				"instance_id", inst.id.String(),
				"workflow_type", inst.workflowType,
			)
		}
		return
	}
}

// invoke выполняет функцию, конвертируя panic (в том числе
// недетерминизм журнала) в ошибку instance.
func invoke(c *Context, fn Orchestration, input map[string]string) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("orchestration panic: %w", rerr)
				return
			}
			err = fmt.Errorf("orchestration panic: %v", r)
		}
	}()

	return fn(c, input)
}

// Await блокируется до завершения instance и возвращает его итог.
func (rt *Runtime) Await(ctx context.Context, id uuid.UUID) (InstanceInfo, error) {
	rt.mu.RLock()
	inst, ok := rt.instances[id]
	rt.mu.RUnlock()
	if !ok {
		return InstanceInfo{}, ErrInstanceNotFound
	}

	select {
	case <-inst.done:
		return inst.info(), nil
	case <-ctx.Done():
		return InstanceInfo{}, ctx.Err()
	}
}

// RaiseEvent доставляет внешнее событие instance.
func (rt *Runtime) RaiseEvent(id uuid.UUID, name string) error {
	rt.mu.RLock()
	inst, ok := rt.instances[id]
	rt.mu.RUnlock()
	if !ok {
		return ErrInstanceNotFound
	}

	inst.raise(name)
	return nil
}

// RaiseEventByType доставляет событие всем приостановленным instances
// данного типа workflow. Возвращает количество уведомлённых.
func (rt *Runtime) RaiseEventByType(workflowType, name string) int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	n := 0
	for _, inst := range rt.instances {
		if inst.workflowType != workflowType {
			continue
		}
		if inst.info().Status != InstanceSuspended {
			continue
		}
		inst.raise(name)
		n++
	}
	return n
}

// Get возвращает наблюдаемое состояние instance: живое, если instance
// загружен в runtime, иначе из хранилища.
func (rt *Runtime) Get(ctx context.Context, id uuid.UUID) (InstanceInfo, error) {
	rt.mu.RLock()
	inst, ok := rt.instances[id]
	rt.mu.RUnlock()
	if ok {
		return inst.info(), nil
	}

	rec, err := rt.store.Get(ctx, id)
	if err != nil {
		return InstanceInfo{}, err
	}
	return InstanceInfo{
		ID:           rec.ID,
		WorkflowType: rec.WorkflowType,
		Status:       rec.Status,
		CustomStatus: rec.CustomStatus,
		Output:       rec.Output,
		Error:        rec.Error,
	}, nil
}

// List возвращает instances из хранилища по фильтру.
func (rt *Runtime) List(ctx context.Context, f Filter) ([]InstanceRecord, error) {
	return rt.store.List(ctx, f)
}

// Wait блокируется до завершения всех запущенных instances.
// Используется при graceful shutdown.
func (rt *Runtime) Wait() {
	rt.wg.Wait()
}

func (rt *Runtime) register(inst *instance) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.instances[inst.id]; ok {
		return fmt.Errorf("%w: %s", ErrInstanceAlreadyExists, inst.id)
	}
	rt.instances[inst.id] = inst
	return nil
}

func (rt *Runtime) unregister(id uuid.UUID) {
	rt.mu.Lock()
	delete(rt.instances, id)
	rt.mu.Unlock()
}
