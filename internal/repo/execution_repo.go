package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkorolev/promptflow/internal/domain"
)

// ExecutionRepo — репозиторий executions и step_results.
// Реализует runner.ExecutionStore.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// CreateExecution создаёт execution вместе со всеми step results
// в одной транзакции.
func (r *ExecutionRepo) CreateExecution(ctx context.Context, exec *domain.Execution) error {
	varsJSON, err := json.Marshal(exec.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, flow_id, tenant_id, user_id, model, row_id,
			variables, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		exec.ID,
		exec.FlowID,
		exec.TenantID,
		exec.UserID,
		exec.Model,
		exec.RowID,
		varsJSON,
		exec.Status,
		exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	for _, step := range exec.Steps {
		_, err = tx.Exec(ctx, `
			INSERT INTO step_results (id, execution_id, template_id, ord, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, step.ID, exec.ID, step.TemplateID, step.Order, step.Status, step.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert step result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdateExecution обновляет статус, тайминги и ошибку execution.
func (r *ExecutionRepo) UpdateExecution(ctx context.Context, exec *domain.Execution) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, started_at = $3, completed_at = $4, duration_ms = $5, error = $6
		WHERE id = $1
	`,
		exec.ID,
		exec.Status,
		exec.StartedAt,
		exec.CompletedAt,
		exec.DurationMs,
		nullIfEmpty(exec.Error),
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStep обновляет один step result.
func (r *ExecutionRepo) UpdateStep(ctx context.Context, step *domain.StepResult) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE step_results
		SET status = $2, prompt = $3, response = $4, error = $5,
		    started_at = $6, completed_at = $7
		WHERE id = $1
	`,
		step.ID,
		step.Status,
		step.Prompt,
		step.Response,
		nullIfEmpty(step.Error),
		step.StartedAt,
		step.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update step result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает execution со всеми step results.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	exec, err := r.scanExecution(r.pool.QueryRow(ctx, `
		SELECT id, flow_id, tenant_id, user_id, model, row_id, variables,
		       status, started_at, completed_at, duration_ms, error, created_at
		FROM executions
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	if exec.Steps, err = r.loadSteps(ctx, id); err != nil {
		return nil, err
	}
	return exec, nil
}

// ListByFlow возвращает executions одного flow, новые первыми.
func (r *ExecutionRepo) ListByFlow(ctx context.Context, flowID uuid.UUID, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `
		SELECT id, flow_id, tenant_id, user_id, model, row_id, variables,
		       status, started_at, completed_at, duration_ms, error, created_at
		FROM executions
		WHERE flow_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, flowID, limit)
}

// ListRecent возвращает последние executions по всем flows.
func (r *ExecutionRepo) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `
		SELECT id, flow_id, tenant_id, user_id, model, row_id, variables,
		       status, started_at, completed_at, duration_ms, error, created_at
		FROM executions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
}

// ListPending возвращает ID executions в статусе pending, старые первыми.
// Используется runner'ом как страховка на случай потерянных сообщений очереди.
func (r *ExecutionRepo) ListPending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM executions
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending executions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan execution id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ExecutionRepo) list(ctx context.Context, query string, args ...any) ([]domain.Execution, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.Execution
	for rows.Next() {
		exec, err := r.scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

func (r *ExecutionRepo) scanExecution(row pgx.Row) (*domain.Execution, error) {
	var exec domain.Execution
	var varsJSON []byte
	var errText *string
	err := row.Scan(
		&exec.ID,
		&exec.FlowID,
		&exec.TenantID,
		&exec.UserID,
		&exec.Model,
		&exec.RowID,
		&varsJSON,
		&exec.Status,
		&exec.StartedAt,
		&exec.CompletedAt,
		&exec.DurationMs,
		&errText,
		&exec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &exec.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	if errText != nil {
		exec.Error = *errText
	}
	return &exec, nil
}

func (r *ExecutionRepo) loadSteps(ctx context.Context, executionID uuid.UUID) ([]domain.StepResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, execution_id, template_id, ord, status, prompt, response, error,
		       started_at, completed_at, created_at
		FROM step_results
		WHERE execution_id = $1
		ORDER BY ord
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("load step results: %w", err)
	}
	defer rows.Close()

	var steps []domain.StepResult
	for rows.Next() {
		var step domain.StepResult
		var errText *string
		if err := rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.TemplateID,
			&step.Order,
			&step.Status,
			&step.Prompt,
			&step.Response,
			&errText,
			&step.StartedAt,
			&step.CompletedAt,
			&step.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan step result: %w", err)
		}
		if errText != nil {
			step.Error = *errText
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// nullIfEmpty превращает пустую строку в NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
