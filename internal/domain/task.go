package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — единица работы: один документ одной компании, который нужно
// прогнать через конкретный workflow.
//
// Task создаётся когда:
//   - Пользователь отправляет задачу через API/CLI
//   - Scheduler создаёт задачу по расписанию повторного сканирования
//
// Dispatcher запускает для каждой задачи один orchestration instance.
type Task struct {
	// ID — уникальный идентификатор задачи.
	ID uuid.UUID `json:"id"`

	// WorkflowType — класс задачи.
	WorkflowType WorkflowType `json:"workflow_type"`

	// Company — компания, чей документ обрабатывается.
	Company string `json:"company,omitempty"`

	// Policy — тип документа: "terms", "privacy" и т.п.
	Policy string `json:"policy,omitempty"`

	// Status — текущий статус обработки.
	Status TaskStatus `json:"status"`

	// InstanceID — идентификатор orchestration instance.
	// Nil, пока dispatcher не запустил instance.
	InstanceID *uuid.UUID `json:"instance_id,omitempty"`

	// Output — результат успешной saga.
	Output map[string]any `json:"output,omitempty"`

	// Error — сериализованная ошибка при FAILED
	// (JSON с error_type, message и стеком).
	Error string `json:"error,omitempty"`

	// IdempotencyKey — ключ идемпотентности для scheduled tasks:
	// "{schedule_id}_{due_at_unix}".
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// StartedAt — время запуска instance.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания задачи.
	CreatedAt time.Time `json:"created_at"`
}

// OrchData возвращает вход orchestration instance для этой задачи.
func (t *Task) OrchData() OrchData {
	return OrchData{
		TaskID:       t.ID,
		WorkflowType: t.WorkflowType,
		Company:      t.Company,
		Policy:       t.Policy,
		Timestamp:    t.CreatedAt,
	}
}

// Duration возвращает продолжительность обработки.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// IsFinished возвращает true, если задача завершена.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// MarkRunning переводит задачу в статус RUNNING и привязывает instance.
func (t *Task) MarkRunning(instanceID uuid.UUID) {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.InstanceID = &instanceID
	t.StartedAt = &now
}

// MarkSucceeded переводит задачу в статус SUCCEEDED с результатом.
func (t *Task) MarkSucceeded(output map[string]any) {
	now := time.Now()
	t.Status = TaskStatusSucceeded
	t.FinishedAt = &now
	t.Output = output
}

// MarkFailed переводит задачу в статус FAILED с ошибкой.
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.FinishedAt = &now
	t.Error = err
}
