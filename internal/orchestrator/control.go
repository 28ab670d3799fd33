package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Covenant/internal/domain"
	"github.com/shaiso/Covenant/internal/durable"
	"github.com/shaiso/Covenant/internal/entity"
)

// Notifier доставляет событие приостановленным instances типа workflow.
type Notifier interface {
	RaiseEventByType(workflowType, name string) int
}

// Controller — операторская поверхность управления circuit breakers.
// Единственный способ возобновить системно падающий тип workflow.
type Controller struct {
	entities durable.EntityCaller
	states   entity.Store
	notifier Notifier
	logger   *slog.Logger
}

// ControllerConfig — конфигурация Controller.
type ControllerConfig struct {
	// Entities — host durable entities.
	Entities durable.EntityCaller

	// States — хранилище состояний entities; используется только
	// для отображения снапшота breaker в статусе.
	States entity.Store

	// Notifier — runtime, доставляющий событие reset.
	Notifier Notifier

	// Logger — структурный логгер; по умолчанию slog.Default.
	Logger *slog.Logger
}

// NewController создаёт Controller.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		entities: cfg.Entities,
		states:   cfg.States,
		notifier: cfg.Notifier,
		logger:   logger,
	}
}

// ResetCircuit сбрасывает circuit breaker типа workflow и возобновляет
// приостановленные instances. Возвращает количество возобновлённых.
//
// Последовательность: RESET → подтверждение через GET_STATUS
// с экспоненциальным backoff → событие reset всем приостановленным
// instances типа. Без подтверждения событие не поднимается: иначе
// возобновлённые instances тут же снова увидят открытый breaker.
func (c *Controller) ResetCircuit(ctx context.Context, wt domain.WorkflowType) (int, error) {
	key := string(wt)

	if _, err := c.entities.Call(ctx, entity.EntityCircuitBreaker, key, entity.OpReset, nil); err != nil {
		return 0, fmt.Errorf("reset circuit %s: %w", key, err)
	}

	if err := c.confirmClosed(ctx, key); err != nil {
		return 0, err
	}

	resumed := c.notifier.RaiseEventByType(key, EventReset)

	c.logger.Info("circuit reset",
		"workflow_type", key,
		"resumed_instances", resumed,
	)
	return resumed, nil
}

// confirmClosed опрашивает GET_STATUS с экспоненциальным backoff,
// пока breaker не подтвердит закрытие.
func (c *Controller) confirmClosed(ctx context.Context, key string) error {
	const maxChecks = 6
	delay := 50 * time.Millisecond

	for i := 0; i < maxChecks; i++ {
		res, err := c.entities.Call(ctx, entity.EntityCircuitBreaker, key, entity.OpGetStatus, nil)
		if err != nil {
			return fmt.Errorf("confirm circuit %s: %w", key, err)
		}
		if healthy, _ := res.(bool); healthy {
			return nil
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}

	return fmt.Errorf("%w: %s", ErrResetNotConfirmed, key)
}

// CircuitStatus возвращает снапшот состояния circuit breaker.
// Снапшот только для отображения: решения принимаются исключительно
// операциями entity.
func (c *Controller) CircuitStatus(ctx context.Context, wt domain.WorkflowType) (domain.CircuitBreakerState, error) {
	raw, err := c.states.Get(ctx, entity.EntityCircuitBreaker, string(wt))
	if err != nil {
		return domain.CircuitBreakerState{}, fmt.Errorf("load circuit state %s: %w", wt, err)
	}
	if raw == nil {
		return domain.NewCircuitBreakerState(), nil
	}

	var s domain.CircuitBreakerState
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("decode circuit state %s: %w", wt, err)
	}
	return s, nil
}
