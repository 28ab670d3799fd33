package durable

import (
	"errors"
	"fmt"
)

// Ошибки runtime.
var (
	// ErrContinueAsNew — сигнальная ошибка: instance перезапускается
	// с пустым журналом (эквивалент continue-as-new). Ограничивает
	// рост replay-журнала у долго ожидающих instances.
	ErrContinueAsNew = errors.New("continue as new")

	// ErrInstanceAlreadyExists — instance с таким ID уже запущен
	// этим или другим процессом.
	ErrInstanceAlreadyExists = errors.New("instance already exists")

	// ErrShutdown — исполнение прервано остановкой хост-процесса.
	// Не терминальный исход: запись instance остаётся нетерминальной,
	// после рестарта Resume продолжит исполнение с точки прерывания.
	ErrShutdown = errors.New("host shutting down")

	// ErrInstanceNotFound — instance не найден в runtime.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrNonDeterministic — порядок suspension points при replay
	// не совпал с журналом: orchestration-функция ветвится на
	// недетерминированном состоянии.
	ErrNonDeterministic = errors.New("non-deterministic orchestration: journal mismatch")
)

// ActivityError — ошибка activity, воспроизведённая из журнала или
// полученная живым вызовом. Сохраняет исходное сообщение, чтобы не
// скрывать первопричину.
type ActivityError struct {
	// Activity — имя activity.
	Activity string

	// Message — исходное сообщение ошибки.
	Message string
}

// Error возвращает исходное сообщение.
func (e *ActivityError) Error() string {
	return e.Message
}

// String описывает ошибку вместе с именем activity.
func (e *ActivityError) String() string {
	return fmt.Sprintf("activity %s: %s", e.Activity, e.Message)
}
