package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dkorolev/promptflow/internal/domain"
	"github.com/dkorolev/promptflow/internal/mq"
	"github.com/dkorolev/promptflow/internal/repo"
	"github.com/dkorolev/promptflow/internal/runner"
	"github.com/dkorolev/promptflow/internal/telemetry"
)

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	schedules  *repo.ScheduleRepo
	executions *repo.ExecutionRepo
	flows      *repo.FlowRepo
	publisher  *mq.Publisher
	logger     *slog.Logger
	batchSize  int
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules  *repo.ScheduleRepo
	Executions *repo.ExecutionRepo
	Flows      *repo.FlowRepo
	Publisher  *mq.Publisher
	Logger     *slog.Logger
	BatchSize  int // количество schedules за один тик (default: 100)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		schedules:  cfg.Schedules,
		executions: cfg.Executions,
		flows:      cfg.Flows,
		publisher:  cfg.Publisher,
		logger:     logger,
		batchSize:  batchSize,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого schedule создаёт pending execution
// 3. Обновляет next_due_at
// 4. Публикует execution.pending в RabbitMQ
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var processed int
	for i := range schedules {
		sched := &schedules[i]

		if err := s.processSchedule(ctx, sched, now); err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}
		processed++
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
	)
	return nil
}

// processSchedule создаёт execution для одного due schedule.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	flow, err := s.flows.GetByID(ctx, sched.FlowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("flow not found for schedule, skipping",
				"schedule_id", sched.ID,
				"flow_id", sched.FlowID,
			)
			return nil
		}
		return fmt.Errorf("get flow: %w", err)
	}

	// Строка проверяется runner'ом при выполнении; здесь только
	// очевидная неконфигурация: flow требует строку, а schedule её не задаёт.
	if flow.InputEntityID != nil && sched.RowID == nil {
		s.logger.Warn("schedule misses row for flow with input entity, skipping",
			"schedule_id", sched.ID,
			"flow_id", flow.ID,
		)
		return nil
	}

	exec := runner.NewExecution(flow, domain.Identity{}, sched.Variables, sched.RowID)
	if err := s.executions.CreateExecution(ctx, exec); err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	telemetry.SchedulesFired.Inc()

	s.logger.Info("created execution from schedule",
		"execution_id", exec.ID,
		"schedule_id", sched.ID,
		"schedule_name", sched.Name,
		"flow_id", sched.FlowID,
	)

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		// Schedule некорректный — next_due_at не трогаем,
		// запись останется due и будет видна в логах каждый тик.
		s.logger.Error("failed to calculate next due",
			"schedule_id", sched.ID,
			"error", err,
		)
		return nil
	}

	sched.RecordRun(exec.ID, nextDue)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishExecutionPending(ctx, exec.ID); err != nil {
			// Не фатально: execution уже в БД, runner заберёт его поллингом.
			s.logger.Warn("failed to publish execution.pending",
				"execution_id", exec.ID,
				"error", err,
			)
		}
	}
	return nil
}
