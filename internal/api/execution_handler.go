package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/domain"
	"github.com/dkorolev/promptflow/internal/runner"
)

// ListExecutions возвращает список executions.
// GET /api/v1/executions?flow_id=...&limit=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntOr(r.URL.Query().Get("limit"), 50)

	var (
		execs []domain.Execution
		err   error
	)
	if flowIDStr := r.URL.Query().Get("flow_id"); flowIDStr != "" {
		flowID, perr := uuid.Parse(flowIDStr)
		if perr != nil {
			BadRequest(w, "invalid flow_id")
			return
		}
		execs, err = h.executions.ListByFlow(r.Context(), flowID, limit)
	} else {
		execs, err = h.executions.ListRecent(r.Context(), limit)
	}
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(execs))
	for i, exec := range execs {
		result[i] = ExecutionFromDomain(exec)
	}
	List(w, result, len(result))
}

// CreateExecution создаёт pending execution и отдаёт его runner'у
// через очередь. Ответ возвращается сразу, не дожидаясь выполнения.
// POST /api/v1/flows/{id}/executions
func (h *Handler) CreateExecution(w http.ResponseWriter, r *http.Request) {
	flowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	var req CreateExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	flow, err := h.flows.GetByID(r.Context(), flowID)
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	// Валидация строки до создания каких-либо записей:
	// неверно сконфигурированный запуск не оставляет следов.
	if flow.InputEntityID != nil {
		if req.RowID == nil {
			BadRequest(w, "flow requires a row of its input entity, row_id missing")
			return
		}
		row, err := h.rows.GetRow(r.Context(), *req.RowID)
		if HandleRepoError(w, h.logger, err, "row not found") {
			return
		}
		if row.EntityID != *flow.InputEntityID {
			BadRequest(w, "row belongs to a different entity than the flow input entity")
			return
		}
	}

	identity := domain.Identity{TenantID: req.TenantID, UserID: req.UserID}
	exec := runner.NewExecution(flow, identity, req.Variables, req.RowID)

	if err := h.executions.CreateExecution(r.Context(), exec); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishExecutionPending(r.Context(), exec.ID); err != nil {
			// Не фатально: runner подхватит execution поллингом.
			h.logger.Warn("failed to publish execution.pending",
				"execution_id", exec.ID,
				"error", err,
			)
		}
	}

	h.logger.Info("execution created",
		"execution_id", exec.ID,
		"flow_id", flow.ID,
	)
	Created(w, ExecutionFromDomain(*exec))
}

// GetExecution возвращает execution без step results.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	exec, err := h.executions.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}
	Success(w, ExecutionFromDomain(*exec))
}

// ListExecutionSteps возвращает step results execution по порядку.
// GET /api/v1/executions/{id}/steps
func (h *Handler) ListExecutionSteps(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	exec, err := h.executions.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	result := make([]StepResponse, len(exec.Steps))
	for i, step := range exec.Steps {
		result[i] = StepFromDomain(step)
	}
	List(w, result, len(result))
}

// parseIntOr парсит int из строки с fallback на значение по умолчанию.
func parseIntOr(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
