package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — один запуск flow.
//
// Execution и все его StepResults создаются вместе (в статусе pending)
// до начала работы, поэтому прогресс наблюдаем извне в любой момент.
// Execution никогда не удаляется движком; retry — это всегда новый
// Execution, а не возобновление старого.
type Execution struct {
	// ID — уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// FlowID — ссылка на выполняемый flow.
	FlowID uuid.UUID `json:"flow_id"`

	// TenantID — арендатор, от имени которого выполняется flow.
	// Nil — запуск вне тенанта.
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`

	// UserID — пользователь, запустивший flow. Nil — системный запуск.
	UserID *uuid.UUID `json:"user_id,omitempty"`

	// Model — модель backend'а, использованная в этом запуске.
	Model string `json:"model"`

	// RowID — строка, с которой запущен flow.
	// Nil, если flow не объявляет input entity.
	RowID *uuid.UUID `json:"row_id,omitempty"`

	// Variables — свободные переменные запуска.
	// Сохраняются на записи, чтобы отложенный (через очередь)
	// запуск видел тот же запрос, что и создавший его вызов.
	Variables map[string]string `json:"variables,omitempty"`

	// Status — текущий статус выполнения.
	Status ExecutionStatus `json:"status"`

	// StartedAt — время перехода в running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения (успешного или с ошибкой).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// DurationMs — продолжительность выполнения в миллисекундах.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// Error — текст ошибки, если статус error.
	Error string `json:"error,omitempty"`

	// Steps — результаты шагов по возрастанию Order.
	Steps []StepResult `json:"steps,omitempty"`

	// CreatedAt — время создания execution.
	CreatedAt time.Time `json:"created_at"`
}

// IsFinished возвращает true, если execution завершён.
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// MarkRunning переводит execution в статус running.
func (e *Execution) MarkRunning() {
	now := time.Now()
	e.Status = ExecutionStatusRunning
	e.StartedAt = &now
}

// MarkSuccess переводит execution в статус success.
func (e *Execution) MarkSuccess() {
	e.finish(ExecutionStatusSuccess, "")
}

// MarkError переводит execution в статус error с сообщением.
func (e *Execution) MarkError(msg string) {
	e.finish(ExecutionStatusError, msg)
}

func (e *Execution) finish(status ExecutionStatus, msg string) {
	now := time.Now()
	e.Status = status
	e.CompletedAt = &now
	e.Error = msg
	if e.StartedAt != nil {
		e.DurationMs = now.Sub(*e.StartedAt).Milliseconds()
	}
}

// StepByTemplateID ищет StepResult по ID шаблона-источника.
// Возвращает nil, если не найден.
func (e *Execution) StepByTemplateID(templateID uuid.UUID) *StepResult {
	for i := range e.Steps {
		if e.Steps[i].TemplateID == templateID {
			return &e.Steps[i]
		}
	}
	return nil
}

// StepResult — запись о выполнении одного шаблона внутри одного execution.
//
// Order — снимок Template.Order на момент создания execution.
// Последующие правки шаблонов flow не меняют StepResults прошлых запусков.
type StepResult struct {
	// ID — уникальный идентификатор step result.
	ID uuid.UUID `json:"id"`

	// ExecutionID — ссылка на родительский execution.
	ExecutionID uuid.UUID `json:"execution_id"`

	// TemplateID — шаблон, из которого создан шаг.
	TemplateID uuid.UUID `json:"template_id"`

	// Order — порядок выполнения (снимок с шаблона).
	Order int `json:"order"`

	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// Prompt — итоговый текст, отправленный backend'у.
	// Сохраняется до вызова backend'а, чтобы падение посреди вызова
	// оставляло наблюдаемую running-запись с prompt'ом.
	Prompt string `json:"prompt,omitempty"`

	// Response — текст, полученный от backend'а.
	Response string `json:"response,omitempty"`

	// Error — сообщение об ошибке при неудаче.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения шага.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения шага.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// IsFinished возвращает true, если шаг завершён.
func (s *StepResult) IsFinished() bool {
	return s.Status.IsTerminal()
}

// MarkRunning переводит шаг в статус running и фиксирует prompt.
func (s *StepResult) MarkRunning(prompt string) {
	now := time.Now()
	s.Status = StepStatusRunning
	s.Prompt = prompt
	s.StartedAt = &now
}

// MarkSuccess переводит шаг в статус success с ответом backend'а.
func (s *StepResult) MarkSuccess(response string) {
	now := time.Now()
	s.Status = StepStatusSuccess
	s.Response = response
	s.CompletedAt = &now
}

// MarkError переводит шаг в статус error с сообщением.
func (s *StepResult) MarkError(msg string) {
	now := time.Now()
	s.Status = StepStatusError
	s.Error = msg
	s.CompletedAt = &now
}

// ResultText возвращает текст шага для подстановки в контекст
// и в output mappings: error, если он есть, иначе response,
// иначе пустая строка.
func (s *StepResult) ResultText() string {
	if s.Error != "" {
		return s.Error
	}
	return s.Response
}
