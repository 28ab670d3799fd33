package api

import (
	"net/http"

	"github.com/shaiso/Covenant/internal/domain"
)

// ListCircuits возвращает состояние circuit breakers всех типов workflow.
// GET /api/v1/circuits
func (h *Handler) ListCircuits(w http.ResponseWriter, r *http.Request) {
	result := make([]CircuitResponse, 0, len(domain.WorkflowTypes()))

	for _, wt := range domain.WorkflowTypes() {
		state, err := h.controller.CircuitStatus(r.Context(), wt)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}
		result = append(result, CircuitFromState(wt, state))
	}

	List(w, result, len(result))
}

// GetCircuit возвращает состояние circuit breaker типа workflow.
// GET /api/v1/circuits/{type}
func (h *Handler) GetCircuit(w http.ResponseWriter, r *http.Request) {
	wt, err := domain.ParseWorkflowType(r.PathValue("type"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	state, err := h.controller.CircuitStatus(r.Context(), wt)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, CircuitFromState(wt, state))
}

// ResetCircuit сбрасывает circuit breaker и возобновляет
// приостановленные instances. Единственный способ вернуть
// в работу системно падающий тип workflow.
// POST /api/v1/circuits/{type}/reset
func (h *Handler) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	wt, err := domain.ParseWorkflowType(r.PathValue("type"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	resumed, err := h.controller.ResetCircuit(r.Context(), wt)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	// Сигнал остальным экземплярам dispatcher (fanout).
	if h.publisher != nil {
		if err := h.publisher.PublishCircuitReset(r.Context(), string(wt)); err != nil {
			h.logger.Warn("failed to publish circuit.reset",
				"workflow_type", wt,
				"error", err,
			)
		}
	}

	Success(w, ResetCircuitResponse{
		WorkflowType:     string(wt),
		ResumedInstances: resumed,
	})
}
