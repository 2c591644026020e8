package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/domain"
)

// Flow DTOs

// TemplatePayload — шаблон в составе запроса на создание/обновление flow.
type TemplatePayload struct {
	Order       int     `json:"order"`
	Title       string  `json:"title"`
	Source      string  `json:"source"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// MappingPayload — привязка результата шага к свойству сущности.
type MappingPayload struct {
	PropertyName  string `json:"property_name"`
	TemplateOrder int    `json:"template_order"`
}

// OutputPayload — output в составе запроса на создание/обновление flow.
type OutputPayload struct {
	Title    string           `json:"title"`
	EntityID uuid.UUID        `json:"entity_id"`
	Type     string           `json:"type"`
	Mappings []MappingPayload `json:"mappings,omitempty"`
}

// CreateFlowRequest — запрос на создание flow.
type CreateFlowRequest struct {
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	Model         string            `json:"model"`
	Stream        bool              `json:"stream,omitempty"`
	ExecutionType string            `json:"execution_type,omitempty"`
	InputEntityID *uuid.UUID        `json:"input_entity_id,omitempty"`
	Templates     []TemplatePayload `json:"templates"`
	Outputs       []OutputPayload   `json:"outputs,omitempty"`
}

// FlowResponse — ответ с flow.
type FlowResponse struct {
	ID            uuid.UUID               `json:"id"`
	Title         string                  `json:"title"`
	Description   string                  `json:"description,omitempty"`
	Model         string                  `json:"model"`
	Stream        bool                    `json:"stream"`
	ExecutionType string                  `json:"execution_type"`
	InputEntityID *uuid.UUID              `json:"input_entity_id,omitempty"`
	Templates     []domain.PromptTemplate `json:"templates,omitempty"`
	Outputs       []domain.Output         `json:"outputs,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// FlowFromDomain конвертирует domain.Flow в FlowResponse.
func FlowFromDomain(f domain.Flow) FlowResponse {
	return FlowResponse{
		ID:            f.ID,
		Title:         f.Title,
		Description:   f.Description,
		Model:         f.Model,
		Stream:        f.Stream,
		ExecutionType: string(f.ExecutionType),
		InputEntityID: f.InputEntityID,
		Templates:     f.Templates,
		Outputs:       f.Outputs,
		CreatedAt:     f.CreatedAt,
	}
}

// Execution DTOs

// CreateExecutionRequest — запрос на запуск flow.
type CreateExecutionRequest struct {
	RowID     *uuid.UUID        `json:"row_id,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
	TenantID  *uuid.UUID        `json:"tenant_id,omitempty"`
	UserID    *uuid.UUID        `json:"user_id,omitempty"`
}

// ExecutionResponse — ответ с execution.
type ExecutionResponse struct {
	ID          uuid.UUID         `json:"id"`
	FlowID      uuid.UUID         `json:"flow_id"`
	Model       string            `json:"model"`
	RowID       *uuid.UUID        `json:"row_id,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Status      string            `json:"status"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	DurationMs  int64             `json:"duration_ms,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:          e.ID,
		FlowID:      e.FlowID,
		Model:       e.Model,
		RowID:       e.RowID,
		Variables:   e.Variables,
		Status:      string(e.Status),
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		DurationMs:  e.DurationMs,
		Error:       e.Error,
		CreatedAt:   e.CreatedAt,
	}
}

// StepResponse — ответ с одним step result.
type StepResponse struct {
	ID          uuid.UUID  `json:"id"`
	ExecutionID uuid.UUID  `json:"execution_id"`
	TemplateID  uuid.UUID  `json:"template_id"`
	Order       int        `json:"order"`
	Status      string     `json:"status"`
	Prompt      string     `json:"prompt,omitempty"`
	Response    string     `json:"response,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepFromDomain конвертирует domain.StepResult в StepResponse.
func StepFromDomain(s domain.StepResult) StepResponse {
	return StepResponse{
		ID:          s.ID,
		ExecutionID: s.ExecutionID,
		TemplateID:  s.TemplateID,
		Order:       s.Order,
		Status:      string(s.Status),
		Prompt:      s.Prompt,
		Response:    s.Response,
		Error:       s.Error,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name        string            `json:"name,omitempty"`
	CronExpr    string            `json:"cron_expr,omitempty"`
	IntervalSec int               `json:"interval_sec,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	RowID       *uuid.UUID        `json:"row_id,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// UpdateScheduleRequest — запрос на обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string           `json:"name,omitempty"`
	CronExpr    *string           `json:"cron_expr,omitempty"`
	IntervalSec *int              `json:"interval_sec,omitempty"`
	Timezone    *string           `json:"timezone,omitempty"`
	RowID       *uuid.UUID        `json:"row_id,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// ScheduleResponse — ответ со schedule.
type ScheduleResponse struct {
	ID              uuid.UUID         `json:"id"`
	FlowID          uuid.UUID         `json:"flow_id"`
	Name            string            `json:"name,omitempty"`
	CronExpr        string            `json:"cron_expr,omitempty"`
	IntervalSec     int               `json:"interval_sec,omitempty"`
	Timezone        string            `json:"timezone"`
	Enabled         bool              `json:"enabled"`
	RowID           *uuid.UUID        `json:"row_id,omitempty"`
	Variables       map[string]string `json:"variables,omitempty"`
	NextDueAt       *time.Time        `json:"next_due_at,omitempty"`
	LastRunAt       *time.Time        `json:"last_run_at,omitempty"`
	LastExecutionID *uuid.UUID        `json:"last_execution_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:              s.ID,
		FlowID:          s.FlowID,
		Name:            s.Name,
		CronExpr:        s.CronExpr,
		IntervalSec:     s.IntervalSec,
		Timezone:        s.Timezone,
		Enabled:         s.Enabled,
		RowID:           s.RowID,
		Variables:       s.Variables,
		NextDueAt:       s.NextDueAt,
		LastRunAt:       s.LastRunAt,
		LastExecutionID: s.LastExecutionID,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}
