package runner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dkorolev/promptflow/internal/backend"
	"github.com/dkorolev/promptflow/internal/domain"
	"github.com/dkorolev/promptflow/internal/telemetry"
)

// StepOutcome — результат выполнения одного шага.
// Заполнено ровно одно из полей: Response при успехе, Error при неудаче.
type StepOutcome struct {
	Response string
	Error    string
}

// Failed возвращает true, если шаг завершился ошибкой.
func (o StepOutcome) Failed() bool {
	return o.Error != ""
}

// StepExecutor выполняет один шаг: вызывает backend и ведёт StepResult.
//
// Исполнитель никогда не возвращает ошибку вызывающему — любое падение
// (ошибка компиляции передана извне, ошибка backend'а, пустой ответ)
// фиксируется в StepResult, а оркестратор по StepOutcome решает,
// продолжать ли прогон.
type StepExecutor struct {
	store     ExecutionStore
	completer backend.Completer
	logger    *slog.Logger
}

// NewStepExecutor создаёт StepExecutor.
func NewStepExecutor(store ExecutionStore, completer backend.Completer, logger *slog.Logger) *StepExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepExecutor{
		store:     store,
		completer: completer,
		logger:    logger,
	}
}

// Run выполняет шаг с уже срендеренным prompt'ом.
//
// StepResult переводится в running и сохраняется с prompt'ом ДО вызова
// backend'а: упавший посреди вызова процесс оставляет наблюдаемую
// running-запись, по которой видно, что именно было отправлено.
func (e *StepExecutor) Run(ctx context.Context, step *domain.StepResult, req backend.Request) StepOutcome {
	step.MarkRunning(req.Prompt)
	if err := e.store.UpdateStep(ctx, step); err != nil {
		// Не прерываем шаг: запись догонит следующее сохранение.
		e.logger.Warn("failed to persist running step",
			"step_id", step.ID,
			"execution_id", step.ExecutionID,
			"error", err,
		)
	}

	started := time.Now()
	response, err := e.completer.Complete(ctx, req)
	telemetry.BackendRequestDuration.Observe(time.Since(started).Seconds())

	if err == nil && strings.TrimSpace(response) == "" {
		err = backend.ErrEmptyResponse
	}

	if err != nil {
		step.MarkError(err.Error())
		if perr := e.store.UpdateStep(ctx, step); perr != nil {
			e.logger.Error("failed to persist failed step",
				"step_id", step.ID,
				"error", perr,
			)
		}

		e.logger.Warn("step failed",
			"step_id", step.ID,
			"execution_id", step.ExecutionID,
			"order", step.Order,
			"error", err,
		)
		telemetry.StepsTotal.WithLabelValues(string(domain.StepStatusError)).Inc()
		return StepOutcome{Error: err.Error()}
	}

	step.MarkSuccess(response)
	if perr := e.store.UpdateStep(ctx, step); perr != nil {
		e.logger.Error("failed to persist succeeded step",
			"step_id", step.ID,
			"error", perr,
		)
	}

	e.logger.Info("step succeeded",
		"step_id", step.ID,
		"execution_id", step.ExecutionID,
		"order", step.Order,
	)
	telemetry.StepsTotal.WithLabelValues(string(domain.StepStatusSuccess)).Inc()
	return StepOutcome{Response: response}
}

// Fail фиксирует ошибку шага, произошедшую до вызова backend'а
// (например, падение компиляции шаблона).
func (e *StepExecutor) Fail(ctx context.Context, step *domain.StepResult, msg string) StepOutcome {
	step.MarkError(msg)
	if err := e.store.UpdateStep(ctx, step); err != nil {
		e.logger.Error("failed to persist failed step",
			"step_id", step.ID,
			"error", err,
		)
	}

	e.logger.Warn("step failed before backend call",
		"step_id", step.ID,
		"execution_id", step.ExecutionID,
		"order", step.Order,
		"error", msg,
	)
	telemetry.StepsTotal.WithLabelValues(string(domain.StepStatusError)).Inc()
	return StepOutcome{Error: msg}
}
