// Package activity — процессоры бизнес-логики, вызываемые оркестратором.
//
// Activity — именованная функция над плоским входом задачи. Неудача
// бывает двух видов: managed-ошибка возвращается как структурный
// payload {error_type, message} и ретраится оркестратором; обычная
// ошибка Go означает системный сбой и немедленно открывает путь
// к trip circuit breaker без retry.
//
// Activities обязаны быть retry-safe: оркестратор может вызвать
// процессор повторно после managed-ошибки.
package activity
