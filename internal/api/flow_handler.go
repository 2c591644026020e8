package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/domain"
)

// ListFlows возвращает список flows.
// GET /api/v1/flows
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.flows.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]FlowResponse, len(flows))
	for i, flow := range flows {
		result[i] = FlowFromDomain(flow)
	}
	List(w, result, len(result))
}

// CreateFlow создаёт новый flow с шаблонами и outputs.
// POST /api/v1/flows
func (h *Handler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var req CreateFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	flow, err := h.flowFromRequest(uuid.New(), req)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.flows.Create(r.Context(), flow); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("flow created", "flow_id", flow.ID, "title", flow.Title)
	Created(w, FlowFromDomain(*flow))
}

// GetFlow возвращает flow со всеми шаблонами и outputs.
// GET /api/v1/flows/{id}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	flow, err := h.flows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}
	Success(w, FlowFromDomain(*flow))
}

// UpdateFlow обновляет flow, заменяя шаблоны и outputs целиком.
// PUT /api/v1/flows/{id}
func (h *Handler) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	var req CreateFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	existing, err := h.flows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	flow, err := h.flowFromRequest(id, req)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	flow.CreatedAt = existing.CreatedAt

	if err := h.flows.Update(r.Context(), flow); err != nil {
		if HandleRepoError(w, h.logger, err, "flow not found") {
			return
		}
	}

	h.logger.Info("flow updated", "flow_id", flow.ID, "title", flow.Title)
	Success(w, FlowFromDomain(*flow))
}

// DeleteFlow удаляет flow.
// DELETE /api/v1/flows/{id}
func (h *Handler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid flow id")
		return
	}

	if err := h.flows.Delete(r.Context(), id); err != nil {
		if HandleRepoError(w, h.logger, err, "flow not found") {
			return
		}
	}

	h.logger.Info("flow deleted", "flow_id", id)
	NoContent(w)
}

// flowFromRequest собирает и валидирует domain.Flow из запроса.
//
// Mappings в запросе ссылаются на шаблоны по order (ID шаблонов
// назначаются здесь), поэтому сначала создаются шаблоны,
// затем mappings переводятся в ссылки по ID.
func (h *Handler) flowFromRequest(id uuid.UUID, req CreateFlowRequest) (*domain.Flow, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Templates) == 0 {
		return nil, fmt.Errorf("at least one template is required")
	}

	execType := domain.ExecutionTypeSequential
	if req.ExecutionType != "" {
		switch domain.ExecutionType(req.ExecutionType) {
		case domain.ExecutionTypeSequential, domain.ExecutionTypeParallel:
			execType = domain.ExecutionType(req.ExecutionType)
		default:
			return nil, fmt.Errorf("unknown execution type %q", req.ExecutionType)
		}
	}

	if req.InputEntityID != nil && h.catalog.Entity(*req.InputEntityID) == nil {
		return nil, fmt.Errorf("unknown input entity %s", req.InputEntityID)
	}

	flow := &domain.Flow{
		ID:            id,
		Title:         req.Title,
		Description:   req.Description,
		Model:         req.Model,
		Stream:        req.Stream,
		ExecutionType: execType,
		InputEntityID: req.InputEntityID,
		CreatedAt:     time.Now().UTC(),
	}

	byOrder := make(map[int]uuid.UUID, len(req.Templates))
	for _, t := range req.Templates {
		if t.Source == "" {
			return nil, fmt.Errorf("template %q has empty source", t.Title)
		}
		if _, exists := byOrder[t.Order]; exists {
			return nil, fmt.Errorf("duplicate template order %d", t.Order)
		}
		tpl := domain.PromptTemplate{
			ID:          uuid.New(),
			FlowID:      id,
			Order:       t.Order,
			Title:       t.Title,
			Source:      t.Source,
			Temperature: t.Temperature,
			MaxTokens:   t.MaxTokens,
		}
		byOrder[t.Order] = tpl.ID
		flow.Templates = append(flow.Templates, tpl)
	}

	for _, o := range req.Outputs {
		entity := h.catalog.Entity(o.EntityID)
		if entity == nil {
			return nil, fmt.Errorf("output %q: unknown entity %s", o.Title, o.EntityID)
		}

		outType := domain.OutputType(o.Type)
		switch outType {
		case domain.OutputTypeCreateRow, domain.OutputTypeUpdateCurrentRow, domain.OutputTypeCreateChildRow:
		default:
			return nil, fmt.Errorf("output %q: unknown type %q", o.Title, o.Type)
		}

		out := domain.Output{
			ID:       uuid.New(),
			FlowID:   id,
			Title:    o.Title,
			EntityID: o.EntityID,
			Type:     outType,
		}
		for _, m := range o.Mappings {
			templateID, ok := byOrder[m.TemplateOrder]
			if !ok {
				return nil, fmt.Errorf("output %q: mapping %q references unknown template order %d",
					o.Title, m.PropertyName, m.TemplateOrder)
			}
			if entity.PropertyByName(m.PropertyName) == nil {
				return nil, fmt.Errorf("output %q: entity %q has no property %q",
					o.Title, entity.Name, m.PropertyName)
			}
			out.Mappings = append(out.Mappings, domain.OutputMapping{
				PropertyName: m.PropertyName,
				TemplateID:   templateID,
			})
		}
		flow.Outputs = append(flow.Outputs, out)
	}

	return flow, nil
}
