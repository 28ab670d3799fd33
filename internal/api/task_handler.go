package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Covenant/internal/domain"
	"github.com/shaiso/Covenant/internal/repo"
	"github.com/shaiso/Covenant/internal/telemetry"
)

// ListTasks возвращает список задач с фильтрацией.
// GET /api/v1/tasks?workflow_type=...&status=...&limit=...&offset=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := repo.TaskFilter{Limit: 50}

	if wt := r.URL.Query().Get("workflow_type"); wt != "" {
		parsed, err := domain.ParseWorkflowType(wt)
		if err != nil {
			BadRequest(w, "invalid workflow_type")
			return
		}
		filter.WorkflowType = parsed
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.TaskStatus(status)
	}

	filter.Limit = queryInt(r, "limit", 50)
	filter.Offset = queryInt(r, "offset", 0)

	tasks, err := h.taskRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}

	List(w, result, len(result))
}

// CreateTask создаёт новую задачу и публикует её в очередь.
// POST /api/v1/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	wt, err := domain.ParseWorkflowType(req.WorkflowType)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	// Повторная отправка с тем же idempotency key возвращает
	// существующую задачу.
	if req.IdempotencyKey != "" {
		existing, err := h.taskRepo.GetByIdempotencyKey(r.Context(), req.IdempotencyKey)
		if err == nil && existing != nil {
			Success(w, TaskFromDomain(*existing))
			return
		}
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.logger, err)
			return
		}
	}

	task := &domain.Task{
		ID:             uuid.New(),
		WorkflowType:   wt,
		Company:        req.Company,
		Policy:         req.Policy,
		Status:         domain.TaskStatusPending,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now(),
	}

	if err := h.taskRepo.Create(r.Context(), task); err != nil {
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
	}

	if h.publisher != nil {
		if err := h.publisher.PublishTaskPending(r.Context(), task.ID); err != nil {
			// Не фатально: dispatcher заберёт задачу polling'ом.
			telemetry.FromContext(r.Context()).Warn("failed to publish task.pending",
				"task_id", task.ID, "error", err)
		}
	}

	Created(w, TaskFromDomain(*task))
}

// GetTask возвращает задачу по ID.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.taskRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// queryInt парсит числовой query-параметр с дефолтным значением.
func queryInt(r *http.Request, key string, defaultVal int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
