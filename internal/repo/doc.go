// Package repo — PostgreSQL-репозитории: задачи, orchestration
// instances (с журналом), состояния entities и schedules.
package repo
