package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/backend"
	"github.com/dkorolev/promptflow/internal/catalog"
	"github.com/dkorolev/promptflow/internal/domain"
	"github.com/dkorolev/promptflow/internal/outputs"
)

// --- Фейки ---

// memStore — ExecutionStore в памяти.
type memStore struct {
	mu       sync.Mutex
	created  []*domain.Execution
	executed int
}

func (s *memStore) CreateExecution(_ context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, exec)
	return nil
}

func (s *memStore) UpdateExecution(_ context.Context, _ *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed++
	return nil
}

func (s *memStore) UpdateStep(_ context.Context, _ *domain.StepResult) error {
	return nil
}

// memRows — RowReader без детей.
type memRows struct {
	rows map[uuid.UUID]*domain.Row
}

func (r *memRows) GetRow(_ context.Context, id uuid.UUID) (*domain.Row, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, errors.New("row not found")
	}
	return row, nil
}

func (r *memRows) ListChildRows(_ context.Context, _, _ uuid.UUID) ([]domain.Row, error) {
	return nil, nil
}

// memIdentity — IdentityReader.
type memIdentity struct {
	user   *domain.User
	tenant *domain.Tenant
}

func (r *memIdentity) GetUser(_ context.Context, _ uuid.UUID) (*domain.User, error) {
	if r.user == nil {
		return nil, errors.New("user not found")
	}
	return r.user, nil
}

func (r *memIdentity) GetTenant(_ context.Context, _ uuid.UUID) (*domain.Tenant, error) {
	if r.tenant == nil {
		return nil, errors.New("tenant not found")
	}
	return r.tenant, nil
}

// scriptCompleter — Completer, отвечающий по заданной функции
// и запоминающий полученные prompts.
type scriptCompleter struct {
	mu       sync.Mutex
	prompts  []string
	complete func(req backend.Request) (string, error)
}

func (c *scriptCompleter) Complete(_ context.Context, req backend.Request) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, req.Prompt)
	n := len(c.prompts)
	c.mu.Unlock()

	if c.complete != nil {
		return c.complete(req)
	}
	return "response " + string(rune('0'+n-1)), nil
}

func (c *scriptCompleter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

// nullRowStore — RowStore, на котором outputs не срабатывают.
type nullRowStore struct{}

func (nullRowStore) CreateRow(_ context.Context, entityID uuid.UUID, tenantID, createdBy *uuid.UUID, props map[string]domain.PropertyValue, _ *domain.RowLink) (*domain.Row, error) {
	return &domain.Row{ID: uuid.New(), EntityID: entityID, TenantID: tenantID, Properties: props}, nil
}

func (nullRowStore) UpdateRowProperties(_ context.Context, rowID uuid.UUID, _ *uuid.UUID, props map[string]domain.PropertyValue) (*domain.Row, error) {
	return &domain.Row{ID: rowID, Properties: props}, nil
}

func (nullRowStore) LinkRows(_ context.Context, _, _, _ uuid.UUID) error {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(store ExecutionStore, completer backend.Completer, cat *catalog.Catalog) *Runner {
	logger := testLogger()
	return New(Config{
		Store:      store,
		Contexts:   NewContextBuilder(&memRows{}, &memIdentity{}, cat),
		Executor:   NewStepExecutor(store, completer, logger),
		Applicator: outputs.NewApplicator(nullRowStore{}, cat, logger),
		Logger:     logger,
	})
}

func testFlow(execType domain.ExecutionType, sources ...string) *domain.Flow {
	flow := &domain.Flow{
		ID:            uuid.New(),
		Title:         "Test flow",
		Model:         "test-model",
		ExecutionType: execType,
	}
	for i, src := range sources {
		flow.Templates = append(flow.Templates, domain.PromptTemplate{
			ID:     uuid.New(),
			FlowID: flow.ID,
			Order:  i,
			Title:  "Step " + string(rune('A'+i)),
			Source: src,
		})
	}
	return flow
}

// --- Тесты ---

func TestNewExecution(t *testing.T) {
	flow := testFlow(domain.ExecutionTypeSequential, "one", "two", "three")
	// Шаблоны нарочно перемешаны
	flow.Templates[0].Order = 2
	flow.Templates[1].Order = 0
	flow.Templates[2].Order = 1

	rowID := uuid.New()
	exec := NewExecution(flow, domain.Identity{}, map[string]string{"k": "v"}, &rowID)

	if exec.FlowID != flow.ID {
		t.Error("FlowID should be set")
	}
	if exec.Status != domain.ExecutionStatusPending {
		t.Errorf("status = %s, want pending", exec.Status)
	}
	if exec.RowID == nil || *exec.RowID != rowID {
		t.Error("RowID should be set")
	}
	if exec.Model != "test-model" {
		t.Errorf("model = %s", exec.Model)
	}
	if len(exec.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(exec.Steps))
	}

	// Шаги создаются по возрастанию Order, со снимком порядка
	for i, step := range exec.Steps {
		if step.Order != i {
			t.Errorf("step %d has order %d", i, step.Order)
		}
		if step.Status != domain.StepStatusPending {
			t.Errorf("step %d status = %s, want pending", i, step.Status)
		}
		if step.ExecutionID != exec.ID {
			t.Errorf("step %d not linked to execution", i)
		}
	}
	if exec.Steps[0].TemplateID != flow.Templates[1].ID {
		t.Error("step 0 should snapshot the template with order 0")
	}
}

func TestExecuteFlow_SequentialSuccess(t *testing.T) {
	store := &memStore{}
	completer := &scriptCompleter{
		complete: func(req backend.Request) (string, error) {
			if strings.Contains(req.Prompt, "Write a slogan") {
				return "Buy more widgets", nil
			}
			return "An ad using: " + req.Prompt, nil
		},
	}
	r := newTestRunner(store, completer, catalog.New(nil, nil))

	flow := testFlow(domain.ExecutionTypeSequential,
		"Write a slogan for {{variable.product}}",
		"Expand {{promptFlow.results.[0]}} into an ad",
	)

	result, err := r.ExecuteFlow(context.Background(), flow, domain.Identity{}, map[string]string{"product": "widgets"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exec := result.Execution
	if exec.Status != domain.ExecutionStatusSuccess {
		t.Fatalf("status = %s, want success: %s", exec.Status, exec.Error)
	}
	if len(store.created) != 1 {
		t.Errorf("executions created = %d", len(store.created))
	}
	for i, step := range exec.Steps {
		if step.Status != domain.StepStatusSuccess {
			t.Errorf("step %d status = %s", i, step.Status)
		}
	}

	// Второй шаг видит результат первого
	if !strings.Contains(completer.prompts[1], "Buy more widgets") {
		t.Errorf("second prompt should embed first result, got %q", completer.prompts[1])
	}
	// И свободную переменную
	if !strings.Contains(completer.prompts[0], "widgets") {
		t.Errorf("first prompt should embed variable, got %q", completer.prompts[0])
	}
}

func TestRunExecution_SequentialAbort(t *testing.T) {
	store := &memStore{}
	completer := &scriptCompleter{
		complete: func(backend.Request) (string, error) {
			return "", backend.ErrRateLimited
		},
	}
	r := newTestRunner(store, completer, catalog.New(nil, nil))

	flow := testFlow(domain.ExecutionTypeSequential, "first", "second", "third")
	exec := NewExecution(flow, domain.Identity{}, nil, nil)

	result, err := r.RunExecution(context.Background(), flow, exec, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Execution.Status != domain.ExecutionStatusError {
		t.Fatalf("status = %s, want error", result.Execution.Status)
	}
	if !strings.Contains(result.Execution.Error, "rate limited") {
		t.Errorf("execution error = %q", result.Execution.Error)
	}

	// Первый шаг упал, остальные навсегда pending
	if exec.Steps[0].Status != domain.StepStatusError {
		t.Errorf("step 0 status = %s", exec.Steps[0].Status)
	}
	for i := 1; i < len(exec.Steps); i++ {
		if exec.Steps[i].Status != domain.StepStatusPending {
			t.Errorf("step %d status = %s, want pending", i, exec.Steps[i].Status)
		}
	}
	if completer.calls() != 1 {
		t.Errorf("backend calls = %d, want 1", completer.calls())
	}
}

func TestRunExecution_EmptyResponseIsError(t *testing.T) {
	store := &memStore{}
	completer := &scriptCompleter{
		complete: func(backend.Request) (string, error) {
			return "   \n\t ", nil
		},
	}
	r := newTestRunner(store, completer, catalog.New(nil, nil))

	flow := testFlow(domain.ExecutionTypeSequential, "prompt")
	exec := NewExecution(flow, domain.Identity{}, nil, nil)

	result, _ := r.RunExecution(context.Background(), flow, exec, nil)
	if result.Execution.Status != domain.ExecutionStatusError {
		t.Fatalf("status = %s, want error", result.Execution.Status)
	}
	if !strings.Contains(exec.Steps[0].Error, "empty response") {
		t.Errorf("step error = %q", exec.Steps[0].Error)
	}
}

func TestRunExecution_CompileErrorFailsStep(t *testing.T) {
	store := &memStore{}
	completer := &scriptCompleter{}
	r := newTestRunner(store, completer, catalog.New(nil, nil))

	flow := testFlow(domain.ExecutionTypeSequential, "{{#if}}")
	flow.Templates[0].Title = "Broken step"
	exec := NewExecution(flow, domain.Identity{}, nil, nil)

	result, _ := r.RunExecution(context.Background(), flow, exec, nil)
	if result.Execution.Status != domain.ExecutionStatusError {
		t.Fatalf("status = %s, want error", result.Execution.Status)
	}
	if !strings.Contains(exec.Steps[0].Error, "Broken step") {
		t.Errorf("step error should name the template: %q", exec.Steps[0].Error)
	}
	// Backend не вызывался
	if completer.calls() != 0 {
		t.Errorf("backend calls = %d, want 0", completer.calls())
	}
}

func TestRunExecution_Parallel(t *testing.T) {
	store := &memStore{}
	completer := &scriptCompleter{
		complete: func(backend.Request) (string, error) {
			return "done", nil
		},
	}
	r := newTestRunner(store, completer, catalog.New(nil, nil))

	flow := testFlow(domain.ExecutionTypeParallel, "a", "b", "c")
	exec := NewExecution(flow, domain.Identity{}, nil, nil)

	result, err := r.RunExecution(context.Background(), flow, exec, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Execution.Status != domain.ExecutionStatusSuccess {
		t.Fatalf("status = %s: %s", result.Execution.Status, result.Execution.Error)
	}
	// Все шаги выполнены, никто не остался pending
	for i, step := range exec.Steps {
		if step.Status != domain.StepStatusSuccess {
			t.Errorf("step %d status = %s", i, step.Status)
		}
	}
	if completer.calls() != 3 {
		t.Errorf("backend calls = %d, want 3", completer.calls())
	}
}

func TestRunExecution_ParallelFirstFailureWins(t *testing.T) {
	store := &memStore{}
	completer := &scriptCompleter{
		complete: func(req backend.Request) (string, error) {
			if req.Prompt == "boom" {
				return "", errors.New("backend exploded")
			}
			return "ok", nil
		},
	}
	r := newTestRunner(store, completer, catalog.New(nil, nil))

	flow := testFlow(domain.ExecutionTypeParallel, "fine", "boom", "fine too")
	exec := NewExecution(flow, domain.Identity{}, nil, nil)

	result, _ := r.RunExecution(context.Background(), flow, exec, nil)
	if result.Execution.Status != domain.ExecutionStatusError {
		t.Fatalf("status = %s, want error", result.Execution.Status)
	}
	if !strings.Contains(result.Execution.Error, "backend exploded") {
		t.Errorf("execution error = %q", result.Execution.Error)
	}
	// Остальные шаги всё равно выполнились
	if completer.calls() != 3 {
		t.Errorf("backend calls = %d, want 3", completer.calls())
	}
}

func TestRunExecution_NotPending(t *testing.T) {
	store := &memStore{}
	r := newTestRunner(store, &scriptCompleter{}, catalog.New(nil, nil))

	flow := testFlow(domain.ExecutionTypeSequential, "x")
	exec := NewExecution(flow, domain.Identity{}, nil, nil)
	exec.Status = domain.ExecutionStatusRunning

	_, err := r.RunExecution(context.Background(), flow, exec, nil)
	if !errors.Is(err, ErrExecutionNotPending) {
		t.Fatalf("expected ErrExecutionNotPending, got %v", err)
	}
}

func TestExecuteFlow_ValidationFailsBeforeCreate(t *testing.T) {
	store := &memStore{}
	r := newTestRunner(store, &scriptCompleter{}, catalog.New(nil, nil))

	entityID := uuid.New()
	flow := testFlow(domain.ExecutionTypeSequential, "x")
	flow.InputEntityID = &entityID

	// Строка не передана
	_, err := r.ExecuteFlow(context.Background(), flow, domain.Identity{}, nil, nil)
	if !IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(store.created) != 0 {
		t.Error("no execution should be created on validation failure")
	}

	// Строка чужой сущности
	row := &domain.Row{ID: uuid.New(), EntityID: uuid.New()}
	_, err = r.ExecuteFlow(context.Background(), flow, domain.Identity{}, nil, row)
	if !IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRunExecution_ValidationMarksError(t *testing.T) {
	store := &memStore{}
	r := newTestRunner(store, &scriptCompleter{}, catalog.New(nil, nil))

	entityID := uuid.New()
	flow := testFlow(domain.ExecutionTypeSequential, "x")
	flow.InputEntityID = &entityID

	exec := NewExecution(flow, domain.Identity{}, nil, nil)
	result, err := r.RunExecution(context.Background(), flow, exec, nil)
	if !IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if result.Execution.Status != domain.ExecutionStatusError {
		t.Errorf("status = %s, want error", result.Execution.Status)
	}
	// Шаги не выполнялись
	if exec.Steps[0].Status != domain.StepStatusPending {
		t.Errorf("step status = %s, want pending", exec.Steps[0].Status)
	}
}

func TestResultBoard(t *testing.T) {
	board := newResultBoard(2)

	// Завершённый шаг возвращается сразу
	board.complete(0)
	if !board.wait(context.Background(), 0) {
		t.Error("wait(0) should return true after complete")
	}

	// Повторное завершение безопасно
	board.complete(0)

	// Отмена контекста прерывает ожидание
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if board.wait(ctx, 1) {
		t.Error("wait should return false on cancelled context")
	}

	// Неизвестный порядковый номер
	if board.wait(context.Background(), 99) {
		t.Error("wait on unknown order should return false")
	}
}
