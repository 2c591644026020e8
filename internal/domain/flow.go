package domain

import (
	"time"

	"github.com/google/uuid"
)

// Flow — декларативное определение цепочки prompt-шаблонов.
//
// Flow — это неизменяемый «рецепт»: упорядоченный список шаблонов
// плюс outputs, описывающие, как результаты шагов изменяют данные.
// Каждый запуск (Execution) выполняет конкретный flow с конкретной строкой.
type Flow struct {
	// ID — уникальный идентификатор flow.
	ID uuid.UUID `json:"id"`

	// Title — название flow.
	Title string `json:"title"`

	// Description — описание назначения flow.
	Description string `json:"description,omitempty"`

	// Model — идентификатор генеративной модели у backend'а.
	Model string `json:"model"`

	// Stream — запрашивать ли потоковую генерацию у backend'а.
	Stream bool `json:"stream,omitempty"`

	// ExecutionType — стратегия выполнения: sequential или parallel.
	ExecutionType ExecutionType `json:"execution_type"`

	// InputEntityID — сущность, строку которой шаблоны могут читать.
	// Nil, если flow не требует входной строки.
	InputEntityID *uuid.UUID `json:"input_entity_id,omitempty"`

	// Templates — упорядоченный список шаблонов (шагов).
	Templates []PromptTemplate `json:"templates,omitempty"`

	// Outputs — декларативные правила применения результатов.
	Outputs []Output `json:"outputs,omitempty"`

	// CreatedAt — время создания flow.
	CreatedAt time.Time `json:"created_at"`
}

// SortedTemplates возвращает шаблоны по возрастанию Order.
// Копия среза; сам Flow не изменяется.
func (f *Flow) SortedTemplates() []PromptTemplate {
	result := make([]PromptTemplate, len(f.Templates))
	copy(result, f.Templates)
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].Order < result[j-1].Order; j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	return result
}

// TemplateByID ищет шаблон по ID. Возвращает nil, если не найден.
func (f *Flow) TemplateByID(id uuid.UUID) *PromptTemplate {
	for i := range f.Templates {
		if f.Templates[i].ID == id {
			return &f.Templates[i]
		}
	}
	return nil
}

// PromptTemplate — один шаг flow: текст шаблона + параметры генерации.
type PromptTemplate struct {
	// ID — уникальный идентификатор шаблона.
	ID uuid.UUID `json:"id"`

	// FlowID — ссылка на родительский flow.
	FlowID uuid.UUID `json:"flow_id"`

	// Order — порядок выполнения. Уникален в рамках flow.
	Order int `json:"order"`

	// Title — человекочитаемое имя шага.
	Title string `json:"title"`

	// Source — исходный текст шаблона (handlebars-синтаксис).
	Source string `json:"source"`

	// Temperature — температура генерации.
	Temperature float64 `json:"temperature"`

	// MaxTokens — лимит токенов генерации.
	MaxTokens int `json:"max_tokens"`
}

// Output — декларативное правило: какие результаты шагов
// в какие свойства какой сущности записать после завершения execution.
type Output struct {
	// ID — уникальный идентификатор output'а.
	ID uuid.UUID `json:"id"`

	// FlowID — ссылка на родительский flow.
	FlowID uuid.UUID `json:"flow_id"`

	// Title — человекочитаемое имя output'а.
	// Используется как префикс в сообщениях об ошибках применения.
	Title string `json:"title"`

	// EntityID — целевая сущность.
	EntityID uuid.UUID `json:"entity_id"`

	// Type — тип операции: createRow, updateCurrentRow, createChildRow.
	Type OutputType `json:"type"`

	// Mappings — propertyName → шаблон-источник текста.
	Mappings []OutputMapping `json:"mappings,omitempty"`
}

// OutputMapping — привязка результата одного шага к свойству сущности.
type OutputMapping struct {
	// PropertyName — имя свойства целевой сущности.
	PropertyName string `json:"property_name"`

	// TemplateID — шаблон, чей StepResult даёт значение.
	TemplateID uuid.UUID `json:"template_id"`
}
