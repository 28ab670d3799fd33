package domain

// TaskStatus — статус обработки задачи.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
type TaskStatus string

const (
	// TaskStatusPending — задача создана, но ещё не передана оркестратору.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusRunning — для задачи запущен orchestration instance.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusSucceeded — saga завершилась успешно.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed — saga завершилась с ошибкой (circuit tripped).
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed:
		return true
	default:
		return false
	}
}
