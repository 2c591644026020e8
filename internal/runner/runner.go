// Package runner — оркестрация выполнения prompt flow.
//
// Runner владеет жизненным циклом execution: создаёт execution со всеми
// step results до начала работы, прогоняет шаги по выбранной стратегии
// (sequential или parallel), фиксирует тайминги и терминальный статус,
// после чего передаёт завершённый execution применителю outputs.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/backend"
	"github.com/dkorolev/promptflow/internal/domain"
	"github.com/dkorolev/promptflow/internal/engine"
	"github.com/dkorolev/promptflow/internal/outputs"
	"github.com/dkorolev/promptflow/internal/telemetry"
)

// Runner выполняет executions. Один execution двигается на одном
// логическом воркере; несколько executions независимы и не делят
// изменяемого состояния, кроме персистентных записей.
type Runner struct {
	store      ExecutionStore
	contexts   *ContextBuilder
	compiler   *engine.Compiler
	executor   *StepExecutor
	applicator *outputs.Applicator
	logger     *slog.Logger
}

// Config — конфигурация Runner.
type Config struct {
	Store      ExecutionStore
	Contexts   *ContextBuilder
	Compiler   *engine.Compiler
	Executor   *StepExecutor
	Applicator *outputs.Applicator
	Logger     *slog.Logger
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	compiler := cfg.Compiler
	if compiler == nil {
		compiler = engine.NewCompiler()
	}

	return &Runner{
		store:      cfg.Store,
		contexts:   cfg.Contexts,
		compiler:   compiler,
		executor:   cfg.Executor,
		applicator: cfg.Applicator,
		logger:     logger,
	}
}

// Result — итог выполнения flow: завершённый execution
// и эффект применения outputs.
type Result struct {
	Execution *domain.Execution `json:"execution"`
	Output    *outputs.Result   `json:"output"`
}

// NewExecution создаёт execution со StepResult'ами на каждый шаблон.
//
// Order каждого StepResult — снимок Template.Order на момент создания;
// последующие правки flow не меняют прошлые executions.
func NewExecution(flow *domain.Flow, identity domain.Identity, variables map[string]string, rowID *uuid.UUID) *domain.Execution {
	now := time.Now()
	exec := &domain.Execution{
		ID:        uuid.New(),
		FlowID:    flow.ID,
		TenantID:  identity.TenantID,
		UserID:    identity.UserID,
		Model:     flow.Model,
		RowID:     rowID,
		Variables: variables,
		Status:    domain.ExecutionStatusPending,
		CreatedAt: now,
	}

	templates := flow.SortedTemplates()
	exec.Steps = make([]domain.StepResult, len(templates))
	for i, tpl := range templates {
		exec.Steps[i] = domain.StepResult{
			ID:          uuid.New(),
			ExecutionID: exec.ID,
			TemplateID:  tpl.ID,
			Order:       tpl.Order,
			Status:      domain.StepStatusPending,
			CreatedAt:   now,
		}
	}
	return exec
}

// ExecuteFlow — синхронный запуск flow от начала до конца.
//
// Это внешний интерфейс движка: создаёт execution, выполняет шаги
// и применяет outputs. Ошибки валидации возвращаются до создания
// каких-либо записей.
func (r *Runner) ExecuteFlow(ctx context.Context, flow *domain.Flow, identity domain.Identity, variables map[string]string, row *domain.Row) (*Result, error) {
	if err := validateInput(flow, row); err != nil {
		return nil, err
	}

	var rowID *uuid.UUID
	if row != nil {
		rowID = &row.ID
	}

	exec := NewExecution(flow, identity, variables, rowID)
	if err := r.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	return r.RunExecution(ctx, flow, exec, row)
}

// RunExecution выполняет уже созданный pending execution.
// Используется и синхронным путём, и сервисом, потребляющим очередь.
func (r *Runner) RunExecution(ctx context.Context, flow *domain.Flow, exec *domain.Execution, row *domain.Row) (*Result, error) {
	if exec.Status != domain.ExecutionStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrExecutionNotPending, exec.ID, exec.Status)
	}

	identity := domain.Identity{TenantID: exec.TenantID, UserID: exec.UserID}

	if err := validateInput(flow, row); err != nil {
		exec.MarkError(err.Error())
		r.persistExecution(ctx, exec)
		return &Result{Execution: exec}, err
	}

	exec.MarkRunning()
	r.persistExecution(ctx, exec)

	logger := telemetry.WithFlowID(telemetry.WithExecutionID(r.logger, exec.ID.String()), flow.ID.String())
	logger.Info("execution started",
		"execution_type", flow.ExecutionType,
		"steps", len(exec.Steps),
	)

	evalCtx, err := r.contexts.Build(ctx, identity, row, exec.Variables)
	if err != nil {
		exec.MarkError(err.Error())
		r.persistExecution(ctx, exec)
		return r.applyOutputs(ctx, flow, exec, row, identity)
	}

	var failMsg string
	switch flow.ExecutionType {
	case domain.ExecutionTypeSequential:
		failMsg = r.runSequential(ctx, flow, exec, evalCtx)
	case domain.ExecutionTypeParallel:
		failMsg = r.runParallel(ctx, flow, exec, evalCtx)
	default:
		cfgErr := outputs.NewConfigurationError("unknown execution type %q", flow.ExecutionType)
		exec.MarkError(cfgErr.Error())
		r.persistExecution(ctx, exec)
		return &Result{Execution: exec}, cfgErr
	}

	if failMsg != "" {
		exec.MarkError(failMsg)
	} else {
		exec.MarkSuccess()
	}
	r.persistExecution(ctx, exec)

	telemetry.ExecutionsTotal.WithLabelValues(string(exec.Status)).Inc()
	telemetry.ExecutionDuration.Observe(float64(exec.DurationMs) / 1000)

	logger.Info("execution finished",
		"status", exec.Status,
		"duration_ms", exec.DurationMs,
	)

	return r.applyOutputs(ctx, flow, exec, row, identity)
}

// runSequential выполняет шаги строго по возрастанию order.
//
// Перед шагом i оркестратор дожидается результата шага i-1
// (страховка с потолком predecessorWaitTimeout — при строгой
// последовательности результат уже на табло) и шаблон шага видит
// его в promptFlow.results. Ошибка шага прерывает прогон:
// оставшиеся шаги навсегда остаются pending.
func (r *Runner) runSequential(ctx context.Context, flow *domain.Flow, exec *domain.Execution, evalCtx *engine.Context) string {
	board := newResultBoard(len(exec.Steps))

	for i := range exec.Steps {
		step := &exec.Steps[i]

		if i > 0 && !board.wait(ctx, i-1) {
			r.logger.Warn("predecessor result unavailable, proceeding",
				"execution_id", exec.ID,
				"step_index", i,
			)
		}

		outcome := r.runStep(ctx, flow, exec, step, evalCtx)
		if outcome.Failed() {
			board.complete(i)
			return outcome.Error
		}

		evalCtx.SetResult(i, outcome.Response)
		board.complete(i)
	}

	return ""
}

// runParallel запускает все шаги одновременно.
//
// Межшаговых зависимостей данных параллельный режим не даёт:
// шаблон видит в promptFlow.results только результаты шагов,
// успевших завершиться раньше, и никакого ожидания предшественника
// не выполняется. Статус execution — error, если упал любой шаг
// (берётся ошибка самого раннего по порядку).
func (r *Runner) runParallel(ctx context.Context, flow *domain.Flow, exec *domain.Execution, evalCtx *engine.Context) string {
	board := newResultBoard(len(exec.Steps))
	failures := make([]string, len(exec.Steps))

	var wg sync.WaitGroup
	for i := range exec.Steps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer board.complete(i)

			step := &exec.Steps[i]
			outcome := r.runStep(ctx, flow, exec, step, evalCtx)
			if outcome.Failed() {
				failures[i] = outcome.Error
				return
			}
			evalCtx.SetResult(i, outcome.Response)
		}(i)
	}
	wg.Wait()

	for _, msg := range failures {
		if msg != "" {
			return msg
		}
	}
	return ""
}

// runStep компилирует шаблон шага и выполняет его.
// Ошибка компиляции фиксируется на StepResult, не выше.
func (r *Runner) runStep(ctx context.Context, flow *domain.Flow, exec *domain.Execution, step *domain.StepResult, evalCtx *engine.Context) StepOutcome {
	tpl := flow.TemplateByID(step.TemplateID)
	if tpl == nil {
		return r.executor.Fail(ctx, step, fmt.Sprintf("template %s not found in flow", step.TemplateID))
	}

	prompt, err := r.compiler.Compile(tpl.Title, tpl.Source, evalCtx)
	if err != nil {
		return r.executor.Fail(ctx, step, err.Error())
	}

	return r.executor.Run(ctx, step, backend.Request{
		Model:       exec.Model,
		Prompt:      prompt,
		Temperature: tpl.Temperature,
		MaxTokens:   tpl.MaxTokens,
		Stream:      flow.Stream,
		User:        attributionUser(exec),
	})
}

// applyOutputs применяет outputs завершённого execution.
// Фаза выполняется и для успешных, и для упавших прогонов.
func (r *Runner) applyOutputs(ctx context.Context, flow *domain.Flow, exec *domain.Execution, row *domain.Row, identity domain.Identity) (*Result, error) {
	outputResult, err := r.applicator.Apply(ctx, flow, exec, row, identity)
	if err != nil {
		return &Result{Execution: exec, Output: outputResult}, err
	}
	return &Result{Execution: exec, Output: outputResult}, nil
}

// persistExecution сохраняет execution, логируя, но не прерывая,
// ошибки персистентности.
func (r *Runner) persistExecution(ctx context.Context, exec *domain.Execution) {
	if err := r.store.UpdateExecution(ctx, exec); err != nil {
		r.logger.Error("failed to persist execution",
			"execution_id", exec.ID,
			"error", err,
		)
	}
}

// validateInput проверяет соответствие строки объявленному input entity.
func validateInput(flow *domain.Flow, row *domain.Row) error {
	if flow.InputEntityID == nil {
		return nil
	}
	if row == nil {
		return &ValidationError{
			Message: fmt.Sprintf("flow %q requires a row of its input entity, none supplied", flow.Title),
		}
	}
	if row.EntityID != *flow.InputEntityID {
		return &ValidationError{
			Message: fmt.Sprintf("flow %q expects a row of entity %s, got %s",
				flow.Title, flow.InputEntityID, row.EntityID),
		}
	}
	return nil
}

// attributionUser — идентификатор пользователя для атрибуции
// вызова backend'а.
func attributionUser(exec *domain.Execution) string {
	if exec.UserID == nil {
		return ""
	}
	return exec.UserID.String()
}
