package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Covenant/internal/domain"
	"github.com/shaiso/Covenant/internal/durable"
)

// Task DTOs

// CreateTaskRequest — запрос на создание задачи.
type CreateTaskRequest struct {
	WorkflowType   string `json:"workflow_type"`
	Company        string `json:"company,omitempty"`
	Policy         string `json:"policy,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// TaskResponse — ответ с задачей.
type TaskResponse struct {
	ID             uuid.UUID      `json:"id"`
	WorkflowType   string         `json:"workflow_type"`
	Company        string         `json:"company,omitempty"`
	Policy         string         `json:"policy,omitempty"`
	Status         string         `json:"status"`
	InstanceID     *uuid.UUID     `json:"instance_id,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	Error          string         `json:"error,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:             t.ID,
		WorkflowType:   string(t.WorkflowType),
		Company:        t.Company,
		Policy:         t.Policy,
		Status:         string(t.Status),
		InstanceID:     t.InstanceID,
		Output:         t.Output,
		Error:          t.Error,
		IdempotencyKey: t.IdempotencyKey,
		StartedAt:      t.StartedAt,
		FinishedAt:     t.FinishedAt,
		CreatedAt:      t.CreatedAt,
	}
}

// Instance DTOs

// InstanceResponse — ответ с orchestration instance.
type InstanceResponse struct {
	ID           uuid.UUID      `json:"id"`
	WorkflowType string         `json:"workflow_type"`
	Status       string         `json:"status"`
	CustomStatus string         `json:"custom_status,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`
	UpdatedAt    *time.Time     `json:"updated_at,omitempty"`
}

// InstanceFromRecord конвертирует durable.InstanceRecord в InstanceResponse.
func InstanceFromRecord(rec durable.InstanceRecord) InstanceResponse {
	return InstanceResponse{
		ID:           rec.ID,
		WorkflowType: rec.WorkflowType,
		Status:       string(rec.Status),
		CustomStatus: rec.CustomStatus,
		Output:       rec.Output,
		Error:        rec.Error,
		CreatedAt:    &rec.CreatedAt,
		UpdatedAt:    &rec.UpdatedAt,
	}
}

// InstanceFromInfo конвертирует durable.InstanceInfo в InstanceResponse.
func InstanceFromInfo(info durable.InstanceInfo) InstanceResponse {
	return InstanceResponse{
		ID:           info.ID,
		WorkflowType: info.WorkflowType,
		Status:       string(info.Status),
		CustomStatus: info.CustomStatus,
		Output:       info.Output,
		Error:        info.Error,
	}
}

// Circuit DTOs

// CircuitResponse — состояние circuit breaker.
type CircuitResponse struct {
	WorkflowType string     `json:"workflow_type"`
	Strikes      int        `json:"strikes"`
	IsOpen       bool       `json:"is_open"`
	ErrorMessage string     `json:"error_message,omitempty"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
}

// CircuitFromState конвертирует domain.CircuitBreakerState в CircuitResponse.
func CircuitFromState(wt domain.WorkflowType, s domain.CircuitBreakerState) CircuitResponse {
	return CircuitResponse{
		WorkflowType: string(wt),
		Strikes:      s.Strikes,
		IsOpen:       s.IsOpen,
		ErrorMessage: s.ErrorMessage,
		OpenedAt:     s.OpenedAt,
	}
}

// ResetCircuitResponse — результат сброса circuit breaker.
type ResetCircuitResponse struct {
	WorkflowType     string `json:"workflow_type"`
	ResumedInstances int    `json:"resumed_instances"`
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name         string `json:"name"`
	WorkflowType string `json:"workflow_type"`
	Company      string `json:"company"`
	Policy       string `json:"policy"`
	CronExpr     string `json:"cron_expr,omitempty"`
	IntervalSec  int    `json:"interval_sec,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	Enabled      bool   `json:"enabled"`
}

// SetEnabledRequest — запрос на включение/выключение schedule.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ со schedule.
type ScheduleResponse struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	WorkflowType string     `json:"workflow_type"`
	Company      string     `json:"company"`
	Policy       string     `json:"policy"`
	CronExpr     string     `json:"cron_expr,omitempty"`
	IntervalSec  int        `json:"interval_sec,omitempty"`
	Timezone     string     `json:"timezone"`
	Enabled      bool       `json:"enabled"`
	NextDueAt    time.Time  `json:"next_due_at"`
	LastTaskID   *uuid.UUID `json:"last_task_id,omitempty"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:           s.ID,
		Name:         s.Name,
		WorkflowType: string(s.WorkflowType),
		Company:      s.Company,
		Policy:       s.Policy,
		CronExpr:     s.CronExpr,
		IntervalSec:  s.IntervalSec,
		Timezone:     s.Timezone,
		Enabled:      s.Enabled,
		NextDueAt:    s.NextDueAt,
		LastTaskID:   s.LastTaskID,
		LastRunAt:    s.LastRunAt,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
