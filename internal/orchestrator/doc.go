// Package orchestrator — saga-координатор одной задачи.
//
// Для каждой задачи оркестратор в цикле до max_attempts: проверяет
// circuit breaker своего типа workflow, получает токен rate limiter
// (с throttle-ожиданием), вызывает activity-процессор и классифицирует
// результат. Managed-ошибка (структурный {error_type, message} в ответе
// activity) даёт retry с паузой; unmanaged-ошибка (упавший вызов
// activity) не ретраится. И исчерпание попыток, и unmanaged-ошибка
// делают ровно один TRIP circuit breaker и валят instance.
//
// Тело саги детерминировано: все эффекты идут через durable.Context,
// время читается только через CurrentTime. Открытый circuit не ошибка:
// instance приостанавливается на событии reset и после него
// перезапускается с пустым журналом (continue-as-new).
package orchestrator
