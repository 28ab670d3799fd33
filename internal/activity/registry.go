package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Func — одна activity: принимает плоский вход задачи, возвращает
// результат или ошибку. Managed-ошибка возвращается как результат
// через ManagedError, не как error.
type Func func(ctx context.Context, input map[string]any) (map[string]any, error)

// Registry — реестр activities по имени. Реализует
// durable.ActivityInvoker.
type Registry struct {
	logger     *slog.Logger
	activities map[string]Func
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:     logger,
		activities: make(map[string]Func),
	}
}

// Register регистрирует activity. Повторная регистрация имени
// перезаписывает предыдущую.
func (r *Registry) Register(name string, fn Func) {
	r.activities[name] = fn
}

// Invoke выполняет activity по имени.
func (r *Registry) Invoke(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	fn, ok := r.activities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActivity, name)
	}

	started := time.Now()
	output, err := fn(ctx, input)
	elapsed := time.Since(started)

	if err != nil {
		r.logger.Error("activity raised",
			"activity", name,
			"elapsed", elapsed,
			"error", err,
		)
		return nil, err
	}

	if errType, ok := managedErrorType(output); ok {
		r.logger.Warn("activity returned managed error",
			"activity", name,
			"elapsed", elapsed,
			"error_type", errType,
		)
	} else {
		r.logger.Debug("activity completed",
			"activity", name,
			"elapsed", elapsed,
		)
	}

	return output, nil
}

// ManagedError строит managed-ошибку: структурный payload, который
// оркестратор распознаёт и ретраит.
func ManagedError(errType, message string) map[string]any {
	return map[string]any{
		"error_type": errType,
		"message":    message,
	}
}

// managedErrorType распознаёт managed-ошибку в результате activity.
func managedErrorType(output map[string]any) (string, bool) {
	errType, ok := output["error_type"].(string)
	return errType, ok && errType != ""
}

// stringField читает обязательное строковое поле входа.
func stringField(input map[string]any, key string) (string, error) {
	v, ok := input[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingInput, key)
	}
	return v, nil
}

// optionalField читает опциональное строковое поле входа.
func optionalField(input map[string]any, key string) string {
	v, _ := input[key].(string)
	return v
}
