package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание повторного сканирования документа.
//
// Schedule создаёт задачи типа meta/webscraper с заданной периодичностью,
// чтобы система замечала изменения опубликованных политик.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// WorkflowType — тип задач, которые создаёт schedule.
	WorkflowType WorkflowType `json:"workflow_type"`

	// Company и Policy — документ, который сканируется.
	Company string `json:"company"`
	Policy  string `json:"policy"`

	// CronExpr — cron-выражение (5 полей). Пусто, если используется интервал.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах. 0, если используется cron.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — таймзона для cron-выражений (IANA, default UTC).
	Timezone string `json:"timezone"`

	// Enabled — включён ли schedule.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующего срабатывания (UTC).
	NextDueAt time.Time `json:"next_due_at"`

	// LastTaskID — последняя созданная задача.
	LastTaskID *uuid.UUID `json:"last_task_id,omitempty"`

	// LastRunAt — время последнего срабатывания.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// CreatedAt / UpdatedAt — времена создания и изменения.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если schedule задан cron-выражением.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если schedule задан интервалом.
func (s *Schedule) IsInterval() bool {
	return s.IntervalSec > 0
}

// RecordRun фиксирует срабатывание: созданную задачу и следующее время.
func (s *Schedule) RecordRun(taskID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastTaskID = &taskID
	s.LastRunAt = &now
	s.NextDueAt = nextDue
	s.UpdatedAt = now
}
