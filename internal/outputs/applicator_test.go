package outputs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/catalog"
	"github.com/dkorolev/promptflow/internal/domain"
)

// recordingStore — RowStore, запоминающий все операции.
type recordingStore struct {
	created []createdCall
	updated []updatedCall
	linked  []linkedCall

	updateErr error
}

type createdCall struct {
	entityID uuid.UUID
	props    map[string]domain.PropertyValue
	link     *domain.RowLink
}

type updatedCall struct {
	rowID uuid.UUID
	props map[string]domain.PropertyValue
}

type linkedCall struct {
	relationshipID, parentRowID, childRowID uuid.UUID
}

func (s *recordingStore) CreateRow(_ context.Context, entityID uuid.UUID, tenantID, _ *uuid.UUID, props map[string]domain.PropertyValue, link *domain.RowLink) (*domain.Row, error) {
	s.created = append(s.created, createdCall{entityID: entityID, props: props, link: link})
	return &domain.Row{ID: uuid.New(), EntityID: entityID, TenantID: tenantID, Properties: props}, nil
}

func (s *recordingStore) UpdateRowProperties(_ context.Context, rowID uuid.UUID, _ *uuid.UUID, props map[string]domain.PropertyValue) (*domain.Row, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	s.updated = append(s.updated, updatedCall{rowID: rowID, props: props})
	return &domain.Row{ID: rowID, Properties: props}, nil
}

func (s *recordingStore) LinkRows(_ context.Context, relationshipID, parentRowID, childRowID uuid.UUID) error {
	s.linked = append(s.linked, linkedCall{relationshipID, parentRowID, childRowID})
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture — flow с одним шаблоном и выполненный execution.
type fixture struct {
	flow *domain.Flow
	exec *domain.Execution
}

func newFixture() *fixture {
	flow := &domain.Flow{ID: uuid.New(), Title: "Fixture"}
	tpl := domain.PromptTemplate{ID: uuid.New(), FlowID: flow.ID, Order: 0, Title: "Step"}
	flow.Templates = []domain.PromptTemplate{tpl}

	exec := &domain.Execution{
		ID:     uuid.New(),
		FlowID: flow.ID,
		Status: domain.ExecutionStatusSuccess,
		Steps: []domain.StepResult{{
			ID:          uuid.New(),
			ExecutionID: uuid.New(),
			TemplateID:  tpl.ID,
			Status:      domain.StepStatusSuccess,
			Response:    "generated text",
		}},
	}
	return &fixture{flow: flow, exec: exec}
}

func (f *fixture) templateID() uuid.UUID {
	return f.flow.Templates[0].ID
}

func TestApply_CreateRow(t *testing.T) {
	f := newFixture()
	entity := domain.Entity{ID: uuid.New(), Name: "slogan"}
	cat := catalog.New([]domain.Entity{entity}, nil)

	f.flow.Outputs = []domain.Output{{
		ID:       uuid.New(),
		FlowID:   f.flow.ID,
		Title:    "Save slogan",
		EntityID: entity.ID,
		Type:     domain.OutputTypeCreateRow,
		Mappings: []domain.OutputMapping{{PropertyName: "text", TemplateID: f.templateID()}},
	}}

	store := &recordingStore{}
	a := NewApplicator(store, cat, quietLogger())

	result, err := a.Apply(context.Background(), f.flow, f.exec, nil, domain.Identity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("created = %d rows", len(store.created))
	}
	if store.created[0].props["text"].Text != "generated text" {
		t.Errorf("text = %q", store.created[0].props["text"].Text)
	}
	if len(result.CreatedRows) != 1 {
		t.Fatalf("result.CreatedRows = %d", len(result.CreatedRows))
	}
	if result.CreatedRows[0].Entity.Name != "slogan" {
		t.Errorf("created entity = %s", result.CreatedRows[0].Entity.Name)
	}
	if !strings.Contains(result.CreatedRows[0].Href, result.CreatedRows[0].Row.ID.String()) {
		t.Errorf("href = %q", result.CreatedRows[0].Href)
	}
}

func TestApply_CreateRow_MapsStepError(t *testing.T) {
	// Ошибка шага записывается в свойство как есть: outputs применяются
	// и для упавших executions.
	f := newFixture()
	f.exec.Steps[0].Status = domain.StepStatusError
	f.exec.Steps[0].Response = ""
	f.exec.Steps[0].Error = "backend rate limited"

	entity := domain.Entity{ID: uuid.New(), Name: "slogan"}
	cat := catalog.New([]domain.Entity{entity}, nil)
	f.flow.Outputs = []domain.Output{{
		Title:    "Save slogan",
		EntityID: entity.ID,
		Type:     domain.OutputTypeCreateRow,
		Mappings: []domain.OutputMapping{{PropertyName: "text", TemplateID: f.templateID()}},
	}}

	store := &recordingStore{}
	a := NewApplicator(store, cat, quietLogger())

	if _, err := a.Apply(context.Background(), f.flow, f.exec, nil, domain.Identity{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.created[0].props["text"].Text != "backend rate limited" {
		t.Errorf("text = %q", store.created[0].props["text"].Text)
	}
}

func TestApply_UpdateCurrentRow(t *testing.T) {
	f := newFixture()
	entity := domain.Entity{ID: uuid.New(), Name: "article"}
	cat := catalog.New([]domain.Entity{entity}, nil)

	// Второй шаблон без ответа: его mapping должен быть пропущен
	emptyTpl := domain.PromptTemplate{ID: uuid.New(), FlowID: f.flow.ID, Order: 1}
	f.flow.Templates = append(f.flow.Templates, emptyTpl)
	f.exec.Steps = append(f.exec.Steps, domain.StepResult{
		ID:         uuid.New(),
		TemplateID: emptyTpl.ID,
		Status:     domain.StepStatusError,
		Error:      "failed",
	})

	f.flow.Outputs = []domain.Output{{
		Title:    "Update article",
		EntityID: entity.ID,
		Type:     domain.OutputTypeUpdateCurrentRow,
		Mappings: []domain.OutputMapping{
			{PropertyName: "summary", TemplateID: f.templateID()},
			{PropertyName: "teaser", TemplateID: emptyTpl.ID},
		},
	}}

	row := &domain.Row{ID: uuid.New(), EntityID: entity.ID}
	store := &recordingStore{}
	a := NewApplicator(store, cat, quietLogger())

	result, err := a.Apply(context.Background(), f.flow, f.exec, row, domain.Identity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.updated) != 1 {
		t.Fatalf("updated = %d rows", len(store.updated))
	}
	props := store.updated[0].props
	if props["summary"].Text != "generated text" {
		t.Errorf("summary = %q", props["summary"].Text)
	}
	if _, ok := props["teaser"]; ok {
		t.Error("mapping of a failed step must be skipped on update")
	}
	if len(result.UpdatedRows) != 1 {
		t.Errorf("result.UpdatedRows = %d", len(result.UpdatedRows))
	}
}

func TestApply_UpdateCurrentRow_AllEmptyIsNoop(t *testing.T) {
	f := newFixture()
	f.exec.Steps[0].Response = ""
	f.exec.Steps[0].Status = domain.StepStatusError
	f.exec.Steps[0].Error = "failed"

	entity := domain.Entity{ID: uuid.New(), Name: "article"}
	cat := catalog.New([]domain.Entity{entity}, nil)
	f.flow.Outputs = []domain.Output{{
		Title:    "Update article",
		EntityID: entity.ID,
		Type:     domain.OutputTypeUpdateCurrentRow,
		Mappings: []domain.OutputMapping{{PropertyName: "summary", TemplateID: f.templateID()}},
	}}

	row := &domain.Row{ID: uuid.New(), EntityID: entity.ID}
	store := &recordingStore{}
	a := NewApplicator(store, cat, quietLogger())

	if _, err := a.Apply(context.Background(), f.flow, f.exec, row, domain.Identity{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.updated) != 0 {
		t.Errorf("update should be skipped entirely, got %d calls", len(store.updated))
	}
}

func TestApply_UpdateCurrentRow_RequiresRow(t *testing.T) {
	f := newFixture()
	entity := domain.Entity{ID: uuid.New(), Name: "article"}
	cat := catalog.New([]domain.Entity{entity}, nil)
	f.flow.Outputs = []domain.Output{{
		Title:    "Update article",
		EntityID: entity.ID,
		Type:     domain.OutputTypeUpdateCurrentRow,
	}}

	a := NewApplicator(&recordingStore{}, cat, quietLogger())
	_, err := a.Apply(context.Background(), f.flow, f.exec, nil, domain.Identity{})
	if !IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	// Ошибка носит префикс имени output'а
	if !strings.Contains(err.Error(), "Update article") {
		t.Errorf("error should be prefixed with output title: %v", err)
	}
}

func TestApply_CreateChildRow(t *testing.T) {
	f := newFixture()
	articleEntity := domain.Entity{ID: uuid.New(), Name: "article"}
	commentEntity := domain.Entity{ID: uuid.New(), Name: "comment"}
	rel := domain.Relationship{ID: uuid.New(), ParentEntityID: articleEntity.ID, ChildEntityID: commentEntity.ID}
	cat := catalog.New([]domain.Entity{articleEntity, commentEntity}, []domain.Relationship{rel})

	f.flow.Outputs = []domain.Output{{
		Title:    "Add comment",
		EntityID: commentEntity.ID,
		Type:     domain.OutputTypeCreateChildRow,
		Mappings: []domain.OutputMapping{{PropertyName: "body", TemplateID: f.templateID()}},
	}}

	row := &domain.Row{ID: uuid.New(), EntityID: articleEntity.ID}
	store := &recordingStore{}
	a := NewApplicator(store, cat, quietLogger())

	_, err := a.Apply(context.Background(), f.flow, f.exec, row, domain.Identity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("created = %d rows", len(store.created))
	}
	link := store.created[0].link
	if link == nil || link.RelationshipID != rel.ID || link.ParentRowID != row.ID {
		t.Errorf("link = %+v", link)
	}
	// Дочерняя строка уже привязана — авто-привязка не дублирует
	if len(store.linked) != 0 {
		t.Errorf("auto-link should skip child rows, got %d links", len(store.linked))
	}
}

func TestApply_CreateChildRow_MissingRelationship(t *testing.T) {
	f := newFixture()
	articleEntity := domain.Entity{ID: uuid.New(), Name: "article"}
	commentEntity := domain.Entity{ID: uuid.New(), Name: "comment"}
	cat := catalog.New([]domain.Entity{articleEntity, commentEntity}, nil)

	f.flow.Outputs = []domain.Output{{
		Title:    "Add comment",
		EntityID: commentEntity.ID,
		Type:     domain.OutputTypeCreateChildRow,
	}}

	row := &domain.Row{ID: uuid.New(), EntityID: articleEntity.ID}
	a := NewApplicator(&recordingStore{}, cat, quietLogger())

	_, err := a.Apply(context.Background(), f.flow, f.exec, row, domain.Identity{})
	if !IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	// Сообщение называет обе сущности
	if !strings.Contains(err.Error(), "article") || !strings.Contains(err.Error(), "comment") {
		t.Errorf("error should name both entities: %v", err)
	}
}

func TestApply_AutoLink(t *testing.T) {
	f := newFixture()
	articleEntity := domain.Entity{ID: uuid.New(), Name: "article"}
	sloganEntity := domain.Entity{ID: uuid.New(), Name: "slogan"}
	rel := domain.Relationship{ID: uuid.New(), ParentEntityID: articleEntity.ID, ChildEntityID: sloganEntity.ID}
	cat := catalog.New([]domain.Entity{articleEntity, sloganEntity}, []domain.Relationship{rel})

	// Обычный createRow, не createChildRow: связь подхватывается авто-привязкой
	f.flow.Outputs = []domain.Output{{
		Title:    "Save slogan",
		EntityID: sloganEntity.ID,
		Type:     domain.OutputTypeCreateRow,
		Mappings: []domain.OutputMapping{{PropertyName: "text", TemplateID: f.templateID()}},
	}}

	row := &domain.Row{ID: uuid.New(), EntityID: articleEntity.ID}
	store := &recordingStore{}
	a := NewApplicator(store, cat, quietLogger())

	result, err := a.Apply(context.Background(), f.flow, f.exec, row, domain.Identity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.linked) != 1 {
		t.Fatalf("linked = %d", len(store.linked))
	}
	if store.linked[0].relationshipID != rel.ID || store.linked[0].parentRowID != row.ID {
		t.Errorf("link = %+v", store.linked[0])
	}
	if store.linked[0].childRowID != result.CreatedRows[0].Row.ID {
		t.Error("link should target the created row")
	}
}

func TestApply_ErrorAbortsRemainingOutputs(t *testing.T) {
	f := newFixture()
	entity := domain.Entity{ID: uuid.New(), Name: "article"}
	cat := catalog.New([]domain.Entity{entity}, nil)

	f.flow.Outputs = []domain.Output{
		{
			Title:    "Broken update",
			EntityID: entity.ID,
			Type:     domain.OutputTypeUpdateCurrentRow,
			Mappings: []domain.OutputMapping{{PropertyName: "summary", TemplateID: f.templateID()}},
		},
		{
			Title:    "Never reached",
			EntityID: entity.ID,
			Type:     domain.OutputTypeCreateRow,
		},
	}

	row := &domain.Row{ID: uuid.New(), EntityID: entity.ID}
	store := &recordingStore{updateErr: errors.New("storage down")}
	a := NewApplicator(store, cat, quietLogger())

	_, err := a.Apply(context.Background(), f.flow, f.exec, row, domain.Identity{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Broken update") {
		t.Errorf("error should be prefixed with output title: %v", err)
	}
	if len(store.created) != 0 {
		t.Error("remaining outputs must not be applied after a failure")
	}
}

func TestApply_UnknownEntity(t *testing.T) {
	f := newFixture()
	f.flow.Outputs = []domain.Output{{
		Title:    "Orphan",
		EntityID: uuid.New(),
		Type:     domain.OutputTypeCreateRow,
	}}

	a := NewApplicator(&recordingStore{}, catalog.New(nil, nil), quietLogger())
	_, err := a.Apply(context.Background(), f.flow, f.exec, nil, domain.Identity{})
	if !IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
