package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Covenant/internal/domain"
	"github.com/shaiso/Covenant/internal/durable"
)

// ListInstances возвращает orchestration instances с фильтрацией.
// Custom status каждого instance ("Throttled until ...",
// "Waiting for circuit ...") виден в ответе.
// GET /api/v1/instances?workflow_type=...&status=...
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	var filter durable.Filter

	if wt := r.URL.Query().Get("workflow_type"); wt != "" {
		parsed, err := domain.ParseWorkflowType(wt)
		if err != nil {
			BadRequest(w, "invalid workflow_type")
			return
		}
		filter.WorkflowType = string(parsed)
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = durable.InstanceStatus(status)
	}

	records, err := h.runtime.List(r.Context(), filter)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	result := make([]InstanceResponse, len(records))
	for i, rec := range records {
		result[i] = InstanceFromRecord(rec)
	}

	List(w, result, len(result))
}

// GetInstance возвращает instance по ID.
// GET /api/v1/instances/{id}
func (h *Handler) GetInstance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid instance id")
		return
	}

	info, err := h.runtime.Get(r.Context(), id)
	if errors.Is(err, durable.ErrInstanceNotFound) {
		NotFound(w, "instance not found")
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, InstanceFromInfo(info))
}
