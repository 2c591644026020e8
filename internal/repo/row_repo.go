package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkorolev/promptflow/internal/domain"
)

// RowRepo — хранилище строк бизнес-сущностей.
// Реализует runner.RowReader и outputs.RowStore.
//
// Свойства строки хранятся одним JSONB-документом: движок не управляет
// схемой сущностей и не раскладывает свойства по колонкам.
type RowRepo struct {
	pool *pgxpool.Pool
}

// NewRowRepo создаёт новый RowRepo.
func NewRowRepo(pool *pgxpool.Pool) *RowRepo {
	return &RowRepo{pool: pool}
}

// GetRow возвращает строку по ID.
func (r *RowRepo) GetRow(ctx context.Context, id uuid.UUID) (*domain.Row, error) {
	return r.scanRow(r.pool.QueryRow(ctx, `
		SELECT id, entity_id, tenant_id, folio, properties,
		       created_by, updated_by, created_at, updated_at
		FROM rows
		WHERE id = $1
	`, id))
}

// ListChildRows возвращает дочерние строки по связи, старые первыми.
func (r *RowRepo) ListChildRows(ctx context.Context, relationshipID, parentRowID uuid.UUID) ([]domain.Row, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.entity_id, r.tenant_id, r.folio, r.properties,
		       r.created_by, r.updated_by, r.created_at, r.updated_at
		FROM rows r
		JOIN row_links l ON l.child_row_id = r.id
		WHERE l.relationship_id = $1 AND l.parent_row_id = $2
		ORDER BY r.created_at
	`, relationshipID, parentRowID)
	if err != nil {
		return nil, fmt.Errorf("list child rows: %w", err)
	}
	defer rows.Close()

	var result []domain.Row
	for rows.Next() {
		row, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	return result, rows.Err()
}

// ListByEntity возвращает строки сущности, новые первыми.
func (r *RowRepo) ListByEntity(ctx context.Context, entityID uuid.UUID, limit int) ([]domain.Row, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_id, tenant_id, folio, properties,
		       created_by, updated_by, created_at, updated_at
		FROM rows
		WHERE entity_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	var result []domain.Row
	for rows.Next() {
		row, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	return result, rows.Err()
}

// CreateRow создаёт строку сущности, опционально привязав её
// к родительской строке. Folio выдаётся последовательно в рамках сущности.
func (r *RowRepo) CreateRow(ctx context.Context, entityID uuid.UUID, tenantID, createdBy *uuid.UUID, props map[string]domain.PropertyValue, parentLink *domain.RowLink) (*domain.Row, error) {
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshal properties: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Следующий folio в рамках сущности. Выдача под транзакцией:
	// одновременные вставки в одну сущность сериализуются на уровне БД.
	var folio int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(folio), 0) + 1
		FROM rows
		WHERE entity_id = $1
	`, entityID).Scan(&folio)
	if err != nil {
		return nil, fmt.Errorf("next folio: %w", err)
	}

	row := domain.Row{
		ID:         uuid.New(),
		EntityID:   entityID,
		TenantID:   tenantID,
		Folio:      folio,
		Properties: props,
		CreatedBy:  createdBy,
		UpdatedBy:  createdBy,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rows (id, entity_id, tenant_id, folio, properties,
			created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		row.ID,
		row.EntityID,
		row.TenantID,
		row.Folio,
		propsJSON,
		row.CreatedBy,
		row.UpdatedBy,
		row.CreatedAt,
		row.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert row: %w", err)
	}

	if parentLink != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO row_links (relationship_id, parent_row_id, child_row_id)
			VALUES ($1, $2, $3)
		`, parentLink.RelationshipID, parentLink.ParentRowID, row.ID)
		if err != nil {
			return nil, fmt.Errorf("insert row link: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &row, nil
}

// UpdateRowProperties обновляет перечисленные свойства строки,
// не трогая остальные.
func (r *RowRepo) UpdateRowProperties(ctx context.Context, rowID uuid.UUID, updatedBy *uuid.UUID, props map[string]domain.PropertyValue) (*domain.Row, error) {
	patchJSON, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshal properties: %w", err)
	}

	return r.scanRow(r.pool.QueryRow(ctx, `
		UPDATE rows
		SET properties = properties || $2::jsonb,
		    updated_by = $3,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, entity_id, tenant_id, folio, properties,
		          created_by, updated_by, created_at, updated_at
	`, rowID, patchJSON, updatedBy))
}

// LinkRows привязывает дочернюю строку к родительской.
// Повторная привязка той же пары — не ошибка.
func (r *RowRepo) LinkRows(ctx context.Context, relationshipID, parentRowID, childRowID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO row_links (relationship_id, parent_row_id, child_row_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, relationshipID, parentRowID, childRowID)
	if err != nil {
		return fmt.Errorf("link rows: %w", err)
	}
	return nil
}

func (r *RowRepo) scanRow(row pgx.Row) (*domain.Row, error) {
	var result domain.Row
	var propsJSON []byte
	err := row.Scan(
		&result.ID,
		&result.EntityID,
		&result.TenantID,
		&result.Folio,
		&propsJSON,
		&result.CreatedBy,
		&result.UpdatedBy,
		&result.CreatedAt,
		&result.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	if len(propsJSON) > 0 {
		if err := json.Unmarshal(propsJSON, &result.Properties); err != nil {
			return nil, fmt.Errorf("unmarshal properties: %w", err)
		}
	}
	return &result, nil
}
