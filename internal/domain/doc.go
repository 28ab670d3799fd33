// Package domain содержит основные сущности системы Covenant:
// типы workflow, конфигурацию rate limiting/retry, задачи на обработку
// документов, состояния durable entities и расписания повторного сканирования.
//
// Пакет не зависит от других internal-пакетов.
package domain
