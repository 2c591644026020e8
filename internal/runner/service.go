package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/domain"
	"github.com/dkorolev/promptflow/internal/mq"
	"github.com/dkorolev/promptflow/internal/repo"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 20
)

// Service выполняет pending executions.
//
// Источники работы:
//   - Consumer очереди executions.pending (event-driven)
//   - Периодический poll pending executions из БД (страховка
//     на случай потерянных сообщений и запусков во время простоя)
//
// Каждый execution выполняется в собственной горутине; повторная
// доставка того же execution отфильтровывается по activeExecs
// и по статусу записи в БД.
type Service struct {
	runner     *Runner
	executions *repo.ExecutionRepo
	flows      *repo.FlowRepo
	rows       *repo.RowRepo

	conn      *mq.Connection
	publisher *mq.Publisher

	pollInterval time.Duration
	batchSize    int

	activeExecs map[uuid.UUID]struct{}
	mu          sync.Mutex

	logger *slog.Logger
	wg     sync.WaitGroup
}

// ServiceConfig — конфигурация Service.
type ServiceConfig struct {
	Runner     *Runner
	Executions *repo.ExecutionRepo
	Flows      *repo.FlowRepo
	Rows       *repo.RowRepo

	Conn      *mq.Connection
	Publisher *mq.Publisher

	PollInterval time.Duration // default: 10s
	BatchSize    int           // default: 20

	Logger *slog.Logger
}

// NewService создаёт Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		runner:       cfg.Runner,
		executions:   cfg.Executions,
		flows:        cfg.Flows,
		rows:         cfg.Rows,
		conn:         cfg.Conn,
		publisher:    cfg.Publisher,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		activeExecs:  make(map[uuid.UUID]struct{}),
		logger:       cfg.Logger,
	}
}

// Start запускает consumer и polling и блокируется до отмены контекста.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting runner service",
		"poll_interval", s.pollInterval,
		"batch_size", s.batchSize,
	)

	if s.conn != nil {
		consumer := mq.NewConsumer(s.conn, mq.ConsumerConfig{
			Queue:    mq.QueueExecutionsPending,
			Prefetch: 5,
			Logger:   s.logger,
		})

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			err := consumer.Run(ctx, s.handlePendingMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("pending consumer stopped", "error", err)
			}
		}()
	} else {
		s.logger.Warn("RabbitMQ not connected, running in polling-only mode")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("runner service stopped")
	return nil
}

// handlePendingMessage обрабатывает сообщение execution.pending.
func (s *Service) handlePendingMessage(ctx context.Context, msg mq.Message) error {
	payload, err := mq.ParsePayload[mq.ExecutionPendingPayload](msg)
	if err != nil {
		return err
	}
	s.process(ctx, payload.ExecutionID)
	return nil
}

// pollLoop — цикл polling для fallback.
func (s *Service) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: подхватываем executions, созданные пока сервис не работал.
	s.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Service) poll(ctx context.Context) {
	ids, err := s.executions.ListPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list pending executions", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	s.logger.Debug("poll found pending executions", "count", len(ids))
	for _, id := range ids {
		s.process(ctx, id)
	}
}

// process выполняет один execution, если он ещё не в работе.
func (s *Service) process(ctx context.Context, executionID uuid.UUID) {
	if !s.markActive(executionID) {
		return
	}
	defer s.markDone(executionID)

	exec, err := s.executions.GetByID(ctx, executionID)
	if err != nil {
		s.logger.Error("failed to load execution",
			"execution_id", executionID, "error", err)
		return
	}
	if exec.Status != domain.ExecutionStatusPending {
		// повторная доставка уже выполненного execution
		return
	}

	flow, err := s.flows.GetByID(ctx, exec.FlowID)
	if err != nil {
		s.logger.Error("failed to load flow for execution",
			"execution_id", executionID, "flow_id", exec.FlowID, "error", err)
		exec.MarkError("flow not found: " + exec.FlowID.String())
		if uerr := s.executions.UpdateExecution(ctx, exec); uerr != nil {
			s.logger.Error("failed to persist execution", "execution_id", exec.ID, "error", uerr)
		}
		return
	}

	var row *domain.Row
	if exec.RowID != nil {
		if row, err = s.rows.GetRow(ctx, *exec.RowID); err != nil {
			s.logger.Error("failed to load row for execution",
				"execution_id", executionID, "row_id", *exec.RowID, "error", err)
			row = nil
		}
	}

	_, runErr := s.runner.RunExecution(ctx, flow, exec, row)
	if runErr != nil && !errors.Is(runErr, ErrExecutionNotPending) {
		s.logger.Warn("execution finished with error",
			"execution_id", exec.ID, "error", runErr)
	}

	s.publishCompleted(ctx, flow, exec)
}

func (s *Service) publishCompleted(ctx context.Context, flow *domain.Flow, exec *domain.Execution) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishExecutionCompleted(ctx, mq.ExecutionCompletedPayload{
		ExecutionID: exec.ID,
		FlowID:      flow.ID,
		Status:      string(exec.Status),
		Error:       exec.Error,
	})
	if err != nil {
		s.logger.Warn("failed to publish execution.completed",
			"execution_id", exec.ID, "error", err)
	}
}

func (s *Service) markActive(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.activeExecs[id]; exists {
		return false
	}
	s.activeExecs[id] = struct{}{}
	return true
}

func (s *Service) markDone(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeExecs, id)
}

// ActiveCount возвращает количество executions в работе.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeExecs)
}
