// Package dispatcher — связывает поток задач с durable runtime.
//
// Dispatcher получает задачи из очереди tasks.pending (и подстраховочно
// опрашивает БД), запускает для каждой orchestration instance,
// финализирует строку задачи по итогу instance и публикует событие
// завершения. Операторские сигналы из signals.reset транслируются
// в сброс circuit breaker. После рестарта процесса незавершённые
// instances восстанавливаются replay'ем журнала.
package dispatcher
