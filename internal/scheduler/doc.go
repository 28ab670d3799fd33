// Package scheduler — планировщик повторного сканирования документов.
// По расписанию (cron или интервал) создаёт задачи с idempotency key,
// чтобы рестарт планировщика не породил дубликатов.
package scheduler
