package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Covenant/internal/domain"
	"github.com/shaiso/Covenant/internal/durable"
	"github.com/shaiso/Covenant/internal/entity"
	"github.com/shaiso/Covenant/internal/telemetry"
)

// EventReset — имя внешнего события, возобновляющего instances,
// приостановленные открытым circuit breaker.
const EventReset = "reset"

// Ключи managed-ошибки в ответе activity.
const (
	keyErrorType = "error_type"
	keyMessage   = "message"
)

// Saga — детерминированное тело оркестрации одной задачи.
type Saga struct {
	configs map[domain.WorkflowType]domain.WorkflowConfig
	logger  *slog.Logger
}

// Config — конфигурация Saga.
type Config struct {
	// Configs — конфигурация по типам workflow; по умолчанию
	// domain.DefaultConfigs.
	Configs map[domain.WorkflowType]domain.WorkflowConfig

	// Logger — структурный логгер; по умолчанию slog.Default.
	Logger *slog.Logger
}

// New создаёт Saga.
func New(cfg Config) *Saga {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	configs := cfg.Configs
	if configs == nil {
		configs = domain.DefaultConfigs()
	}

	return &Saga{configs: configs, logger: logger}
}

// Orchestrate — durable.Orchestration одной задачи.
//
// Цикл попыток: circuit → токен → circuit → activity. Managed-ошибка
// activity даёт retry через RetryDelay; unmanaged-ошибка и исчерпание
// попыток делают ровно один TRIP и возвращают ошибку instance.
func (s *Saga) Orchestrate(ctx *durable.Context, input map[string]string) (map[string]any, error) {
	data, err := domain.OrchDataFromMap(input)
	if err != nil {
		return nil, newError(ErrTypeInvalidInput, err.Error(), data)
	}

	cfg, ok := s.configs[data.WorkflowType]
	if !ok {
		return nil, newError(ErrTypeInvalidInput,
			fmt.Sprintf("no workflow config for type %q", data.WorkflowType), data)
	}

	key := string(data.WorkflowType)
	log := ctx.Log().With(
		"task_id", data.TaskID.String(),
		"workflow_type", key,
	)

	var lastType, lastMsg string

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := s.awaitCircuit(ctx, key); err != nil {
			return nil, err
		}

		if err := s.acquireToken(ctx, key, cfg); err != nil {
			return nil, err
		}

		// Пока instance ждал токен, circuit мог открыться.
		if err := s.awaitCircuit(ctx, key); err != nil {
			return nil, err
		}

		output, err := ctx.CallActivity(cfg.ProcessorName, data.ActivityInput())
		if err != nil {
			// Остановка хоста — не сбой activity: circuit не трогаем,
			// instance продолжится после рестарта процесса.
			if errors.Is(err, durable.ErrShutdown) {
				return nil, err
			}
			// Unmanaged-ошибка: системный сбой, не ретраится.
			s.trip(ctx, key, err.Error())
			log.Error("activity raised, circuit tripped",
				"activity", cfg.ProcessorName,
				"error", err,
			)
			return nil, newError(ErrTypeUnmanaged, err.Error(), data)
		}

		errType, msg, managed := managedError(output)
		if !managed {
			log.Info("task succeeded",
				"activity", cfg.ProcessorName,
				"attempt", attempt,
			)
			return output, nil
		}

		lastType, lastMsg = errType, msg
		if attempt == cfg.MaxAttempts {
			break
		}

		log.Warn("activity returned managed error, retrying",
			"activity", cfg.ProcessorName,
			"error_type", errType,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
		)
		ctx.SetCustomStatus(fmt.Sprintf("Retrying after %s (attempt %d/%d)", errType, attempt, cfg.MaxAttempts))

		if err := ctx.CreateTimer(cfg.RetryDelay); err != nil {
			return nil, err
		}
	}

	// Попытки исчерпаны с устойчивой managed-ошибкой.
	s.trip(ctx, key, lastMsg)
	log.Error("attempts exhausted, circuit tripped",
		"activity", cfg.ProcessorName,
		"error_type", lastType,
		"max_attempts", cfg.MaxAttempts,
	)
	return nil, newError(lastType, lastMsg, data)
}

// awaitCircuit проверяет circuit breaker типа workflow. Открытый
// breaker — не ошибка: instance приостанавливается до события reset
// и затем перезапускается с пустым журналом.
func (s *Saga) awaitCircuit(ctx *durable.Context, key string) error {
	// Флаг replay снимается до вызова: после потребления последней
	// записи журнала IsReplaying уже false, а отказ был историческим.
	replaying := ctx.IsReplaying()

	res, err := ctx.CallEntity(entity.EntityCircuitBreaker, key, entity.OpGetStatus, nil)
	if err != nil {
		return err
	}
	if healthy, _ := res.(bool); healthy {
		return nil
	}

	if !replaying {
		telemetry.CircuitRejections.WithLabelValues(key).Inc()
	}

	ctx.SetCustomStatus("Waiting for circuit " + key + " reset")
	ctx.Log().Warn("circuit open, suspending until reset", "workflow_type", key)

	if err := ctx.WaitForExternalEvent(EventReset); err != nil {
		return err
	}
	return ctx.ContinueAsNew()
}

// acquireToken опрашивает rate limiter до получения токена,
// выдерживая ThrottleDelay между отказами. Throttle-эпизод считается
// один раз на первый отказ, не на каждый опрос.
func (s *Saga) acquireToken(ctx *durable.Context, key string, cfg domain.WorkflowConfig) error {
	throttled := false

	for {
		replaying := ctx.IsReplaying()
		now := ctx.CurrentTime()

		res, err := ctx.CallEntity(entity.EntityRateLimiter, key, entity.OpTryAcquire, entity.TryAcquireInput{
			RateLimitRPM:    cfg.RateLimitRPM,
			RateLimitPeriod: cfg.RateLimitPeriod,
			Now:             now,
		})
		if err != nil {
			return err
		}

		if acquired, _ := res.(bool); acquired {
			if throttled {
				ctx.SetCustomStatus("")
			}
			return nil
		}

		if !throttled {
			throttled = true
			if !replaying {
				telemetry.ThrottleEvents.Inc()
			}
			ctx.Log().Info("rate limited, throttling",
				"workflow_type", key,
				"throttle_delay", cfg.ThrottleDelay,
			)
		}

		ctx.SetCustomStatus("Throttled until " + now.Add(cfg.ThrottleDelay).UTC().Format(time.RFC3339))

		if err := ctx.CreateTimer(cfg.ThrottleDelay); err != nil {
			return err
		}
	}
}

// trip делает TRIP circuit breaker. Вызывается ровно один раз на
// упавшую сагу: при unmanaged-ошибке или при исчерпании попыток.
func (s *Saga) trip(ctx *durable.Context, key, errMsg string) {
	replaying := ctx.IsReplaying()
	now := ctx.CurrentTime()

	_, err := ctx.CallEntity(entity.EntityCircuitBreaker, key, entity.OpTrip, entity.TripInput{
		ErrorMessage: errMsg,
		Now:          now,
	})
	if err != nil {
		ctx.Log().Error("failed to trip circuit", "workflow_type", key, "error", err)
		return
	}

	if !replaying {
		telemetry.CircuitTrips.WithLabelValues(key).Inc()
	}
}

// managedError распознаёт managed-ошибку в ответе activity:
// mapping с непустыми error_type и message.
func managedError(output map[string]any) (errType, msg string, ok bool) {
	rawType, hasType := output[keyErrorType].(string)
	if !hasType || rawType == "" {
		return "", "", false
	}
	rawMsg, _ := output[keyMessage].(string)
	return rawType, rawMsg, true
}
