// Package outputs — применение результатов execution к хранилищу строк.
//
// После завершения execution (успешного или нет) применитель читает
// декларативные outputs flow и превращает тексты шагов в операции
// создания/обновления строк. Транзакционности между outputs нет:
// ошибка одного output'а прерывает оставшиеся, но уже применённые
// эффекты сохраняются.
package outputs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/catalog"
	"github.com/dkorolev/promptflow/internal/domain"
)

// RowStore — операции записи хранилища строк, нужные применителю.
type RowStore interface {
	// CreateRow создаёт строку сущности, опционально привязав её
	// к родительской строке через parentLink.
	CreateRow(ctx context.Context, entityID uuid.UUID, tenantID, createdBy *uuid.UUID, props map[string]domain.PropertyValue, parentLink *domain.RowLink) (*domain.Row, error)

	// UpdateRowProperties обновляет перечисленные свойства строки.
	UpdateRowProperties(ctx context.Context, rowID uuid.UUID, updatedBy *uuid.UUID, props map[string]domain.PropertyValue) (*domain.Row, error)

	// LinkRows привязывает дочернюю строку к родительской.
	LinkRows(ctx context.Context, relationshipID, parentRowID, childRowID uuid.UUID) error
}

// CreatedRow — созданная применителем строка с её сущностью
// и ссылкой для UI вызывающего.
type CreatedRow struct {
	Entity domain.Entity `json:"entity"`
	Row    domain.Row    `json:"row"`
	Href   string        `json:"href"`

	// viaChildOutput — строка уже привязана к родителю
	// через createChildRow; авто-привязка её пропускает.
	viaChildOutput bool
}

// Result — итог применения outputs одного execution.
type Result struct {
	CreatedRows []CreatedRow `json:"created_rows"`
	UpdatedRows []domain.Row `json:"updated_rows"`
}

// Applicator применяет outputs завершённого execution.
type Applicator struct {
	rows    RowStore
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewApplicator создаёт Applicator.
func NewApplicator(rows RowStore, cat *catalog.Catalog, logger *slog.Logger) *Applicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applicator{
		rows:    rows,
		catalog: cat,
		logger:  logger,
	}
}

// Apply применяет все outputs flow к завершённому execution.
//
// row — исходная строка запуска; обязательна для updateCurrentRow
// и createChildRow. Ошибка любого output'а прерывает оставшиеся
// и возвращается с префиксом имени output'а.
func (a *Applicator) Apply(ctx context.Context, flow *domain.Flow, exec *domain.Execution, row *domain.Row, identity domain.Identity) (*Result, error) {
	result := &Result{}

	for i := range flow.Outputs {
		output := &flow.Outputs[i]
		if err := a.applyOutput(ctx, output, exec, row, identity, result); err != nil {
			return result, fmt.Errorf("%s: %w", output.Title, err)
		}
	}

	a.autoLink(ctx, row, result)

	return result, nil
}

// applyOutput применяет один output.
func (a *Applicator) applyOutput(ctx context.Context, output *domain.Output, exec *domain.Execution, row *domain.Row, identity domain.Identity, result *Result) error {
	entity := a.catalog.Entity(output.EntityID)
	if entity == nil {
		return NewConfigurationError("unknown entity %s", output.EntityID)
	}

	switch output.Type {
	case domain.OutputTypeCreateRow:
		return a.createRow(ctx, output, entity, exec, identity, nil, false, result)

	case domain.OutputTypeUpdateCurrentRow:
		return a.updateCurrentRow(ctx, output, exec, row, identity, result)

	case domain.OutputTypeCreateChildRow:
		if row == nil {
			return NewConfigurationError("output %q requires an originating row", output.Title)
		}
		rel := a.catalog.FindRelationship(row.EntityID, output.EntityID)
		if rel == nil {
			parentEntity := a.catalog.Entity(row.EntityID)
			parentName := row.EntityID.String()
			if parentEntity != nil {
				parentName = parentEntity.Name
			}
			return NewConfigurationError(
				"no parent/child relationship configured between %s and %s",
				parentName, entity.Name,
			)
		}
		link := &domain.RowLink{RelationshipID: rel.ID, ParentRowID: row.ID}
		return a.createRow(ctx, output, entity, exec, identity, link, true, result)

	default:
		return NewConfigurationError("unknown output type %q", output.Type)
	}
}

// createRow создаёт строку из результатов шагов.
// Значение mapping'а — error шага, если он есть, иначе response,
// иначе пустая строка.
func (a *Applicator) createRow(ctx context.Context, output *domain.Output, entity *domain.Entity, exec *domain.Execution, identity domain.Identity, link *domain.RowLink, viaChild bool, result *Result) error {
	props := make(map[string]domain.PropertyValue, len(output.Mappings))
	for _, m := range output.Mappings {
		step := exec.StepByTemplateID(m.TemplateID)
		text := ""
		if step != nil {
			text = step.ResultText()
		}
		props[m.PropertyName] = domain.TextValue(text)
	}

	created, err := a.rows.CreateRow(ctx, output.EntityID, identity.TenantID, identity.UserID, props, link)
	if err != nil {
		return fmt.Errorf("create row: %w", err)
	}

	result.CreatedRows = append(result.CreatedRows, CreatedRow{
		Entity:         *entity,
		Row:            *created,
		Href:           rowHref(created),
		viaChildOutput: viaChild,
	})
	return nil
}

// updateCurrentRow обновляет исходную строку запуска.
// Применяются только mappings, чей шаг дал непустой response —
// ошибки шагов в обновление не записываются.
func (a *Applicator) updateCurrentRow(ctx context.Context, output *domain.Output, exec *domain.Execution, row *domain.Row, identity domain.Identity, result *Result) error {
	if row == nil {
		return NewConfigurationError("output %q requires an originating row", output.Title)
	}

	props := make(map[string]domain.PropertyValue)
	for _, m := range output.Mappings {
		step := exec.StepByTemplateID(m.TemplateID)
		if step == nil || step.Response == "" {
			continue
		}
		props[m.PropertyName] = domain.TextValue(step.Response)
	}
	if len(props) == 0 {
		return nil
	}

	updated, err := a.rows.UpdateRowProperties(ctx, row.ID, identity.UserID, props)
	if err != nil {
		return fmt.Errorf("update row: %w", err)
	}

	result.UpdatedRows = append(result.UpdatedRows, *updated)
	return nil
}

// autoLink привязывает созданные строки к исходной, если для их
// сущностей независимо сконфигурирована связь parent/child.
// Это удобство, а не гарантия: отсутствие связи или ошибка привязки
// не валят прогон.
func (a *Applicator) autoLink(ctx context.Context, row *domain.Row, result *Result) {
	if row == nil {
		return
	}

	for i := range result.CreatedRows {
		created := &result.CreatedRows[i]
		if created.viaChildOutput {
			continue
		}

		rel := a.catalog.FindRelationship(row.EntityID, created.Row.EntityID)
		if rel == nil {
			continue
		}

		if err := a.rows.LinkRows(ctx, rel.ID, row.ID, created.Row.ID); err != nil {
			a.logger.Warn("failed to auto-link created row",
				"row_id", created.Row.ID,
				"parent_row_id", row.ID,
				"relationship_id", rel.ID,
				"error", err,
			)
		}
	}
}

// rowHref — ссылка на строку для UI вызывающего.
func rowHref(row *domain.Row) string {
	return fmt.Sprintf("/entities/%s/rows/%s", row.EntityID, row.ID)
}
