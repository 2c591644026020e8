package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkorolev/promptflow/internal/domain"
)

// FlowRepo — репозиторий для работы с flows, prompt_templates и outputs.
type FlowRepo struct {
	pool *pgxpool.Pool
}

// NewFlowRepo создаёт новый FlowRepo.
func NewFlowRepo(pool *pgxpool.Pool) *FlowRepo {
	return &FlowRepo{pool: pool}
}

// Create создаёт flow вместе с шаблонами и outputs в одной транзакции.
func (r *FlowRepo) Create(ctx context.Context, flow *domain.Flow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO flows (id, title, description, model, stream, execution_type, input_entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		flow.ID,
		flow.Title,
		flow.Description,
		flow.Model,
		flow.Stream,
		flow.ExecutionType,
		flow.InputEntityID,
		flow.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("flow %q: %w", flow.Title, ErrAlreadyExists)
		}
		return fmt.Errorf("insert flow: %w", err)
	}

	if err := insertTemplates(ctx, tx, flow.ID, flow.Templates); err != nil {
		return err
	}
	if err := insertOutputs(ctx, tx, flow.ID, flow.Outputs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID возвращает flow со всеми шаблонами и outputs.
func (r *FlowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flow, error) {
	var flow domain.Flow
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, description, model, stream, execution_type, input_entity_id, created_at
		FROM flows
		WHERE id = $1
	`, id).Scan(
		&flow.ID,
		&flow.Title,
		&flow.Description,
		&flow.Model,
		&flow.Stream,
		&flow.ExecutionType,
		&flow.InputEntityID,
		&flow.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow by id: %w", err)
	}

	if flow.Templates, err = r.loadTemplates(ctx, id); err != nil {
		return nil, err
	}
	if flow.Outputs, err = r.loadOutputs(ctx, id); err != nil {
		return nil, err
	}
	return &flow, nil
}

// List возвращает все flows без вложенных шаблонов и outputs.
func (r *FlowRepo) List(ctx context.Context) ([]domain.Flow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, description, model, stream, execution_type, input_entity_id, created_at
		FROM flows
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []domain.Flow
	for rows.Next() {
		var flow domain.Flow
		if err := rows.Scan(
			&flow.ID,
			&flow.Title,
			&flow.Description,
			&flow.Model,
			&flow.Stream,
			&flow.ExecutionType,
			&flow.InputEntityID,
			&flow.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		flows = append(flows, flow)
	}
	return flows, rows.Err()
}

// Update обновляет flow и полностью заменяет его шаблоны и outputs.
func (r *FlowRepo) Update(ctx context.Context, flow *domain.Flow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE flows
		SET title = $2, description = $3, model = $4, stream = $5,
		    execution_type = $6, input_entity_id = $7
		WHERE id = $1
	`,
		flow.ID,
		flow.Title,
		flow.Description,
		flow.Model,
		flow.Stream,
		flow.ExecutionType,
		flow.InputEntityID,
	)
	if err != nil {
		return fmt.Errorf("update flow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	// Шаблоны и outputs заменяются целиком: старые записи удаляются.
	if _, err := tx.Exec(ctx, `DELETE FROM prompt_templates WHERE flow_id = $1`, flow.ID); err != nil {
		return fmt.Errorf("delete templates: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM outputs WHERE flow_id = $1`, flow.ID); err != nil {
		return fmt.Errorf("delete outputs: %w", err)
	}
	if err := insertTemplates(ctx, tx, flow.ID, flow.Templates); err != nil {
		return err
	}
	if err := insertOutputs(ctx, tx, flow.ID, flow.Outputs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete удаляет flow (каскадно удалит templates, outputs, executions).
func (r *FlowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertTemplates(ctx context.Context, tx pgx.Tx, flowID uuid.UUID, templates []domain.PromptTemplate) error {
	for _, t := range templates {
		_, err := tx.Exec(ctx, `
			INSERT INTO prompt_templates (id, flow_id, ord, title, source, temperature, max_tokens)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, t.ID, flowID, t.Order, t.Title, t.Source, t.Temperature, t.MaxTokens)
		if err != nil {
			return fmt.Errorf("insert template %s: %w", t.Title, err)
		}
	}
	return nil
}

func insertOutputs(ctx context.Context, tx pgx.Tx, flowID uuid.UUID, outputs []domain.Output) error {
	for _, o := range outputs {
		_, err := tx.Exec(ctx, `
			INSERT INTO outputs (id, flow_id, title, entity_id, output_type)
			VALUES ($1, $2, $3, $4, $5)
		`, o.ID, flowID, o.Title, o.EntityID, o.Type)
		if err != nil {
			return fmt.Errorf("insert output %s: %w", o.Title, err)
		}
		for _, m := range o.Mappings {
			_, err := tx.Exec(ctx, `
				INSERT INTO output_mappings (output_id, property_name, template_id)
				VALUES ($1, $2, $3)
			`, o.ID, m.PropertyName, m.TemplateID)
			if err != nil {
				return fmt.Errorf("insert output mapping %s: %w", m.PropertyName, err)
			}
		}
	}
	return nil
}

func (r *FlowRepo) loadTemplates(ctx context.Context, flowID uuid.UUID) ([]domain.PromptTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, flow_id, ord, title, source, temperature, max_tokens
		FROM prompt_templates
		WHERE flow_id = $1
		ORDER BY ord
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.PromptTemplate
	for rows.Next() {
		var t domain.PromptTemplate
		if err := rows.Scan(
			&t.ID,
			&t.FlowID,
			&t.Order,
			&t.Title,
			&t.Source,
			&t.Temperature,
			&t.MaxTokens,
		); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *FlowRepo) loadOutputs(ctx context.Context, flowID uuid.UUID) ([]domain.Output, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, flow_id, title, entity_id, output_type
		FROM outputs
		WHERE flow_id = $1
		ORDER BY title
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("load outputs: %w", err)
	}
	defer rows.Close()

	var outputs []domain.Output
	for rows.Next() {
		var o domain.Output
		if err := rows.Scan(
			&o.ID,
			&o.FlowID,
			&o.Title,
			&o.EntityID,
			&o.Type,
		); err != nil {
			return nil, fmt.Errorf("scan output: %w", err)
		}
		outputs = append(outputs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range outputs {
		if outputs[i].Mappings, err = r.loadMappings(ctx, outputs[i].ID); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

func (r *FlowRepo) loadMappings(ctx context.Context, outputID uuid.UUID) ([]domain.OutputMapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT property_name, template_id
		FROM output_mappings
		WHERE output_id = $1
		ORDER BY property_name
	`, outputID)
	if err != nil {
		return nil, fmt.Errorf("load output mappings: %w", err)
	}
	defer rows.Close()

	var mappings []domain.OutputMapping
	for rows.Next() {
		var m domain.OutputMapping
		if err := rows.Scan(&m.PropertyName, &m.TemplateID); err != nil {
			return nil, fmt.Errorf("scan output mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}
