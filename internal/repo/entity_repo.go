package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkorolev/promptflow/internal/catalog"
	"github.com/dkorolev/promptflow/internal/domain"
)

// EntityRepo — чтение каталога сущностей и связей.
type EntityRepo struct {
	pool *pgxpool.Pool
}

// NewEntityRepo создаёт новый EntityRepo.
func NewEntityRepo(pool *pgxpool.Pool) *EntityRepo {
	return &EntityRepo{pool: pool}
}

// LoadCatalog читает все сущности, их свойства и связи и собирает каталог.
// Вызывается один раз при старте сервиса.
func (r *EntityRepo) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	entities, err := r.listEntities(ctx)
	if err != nil {
		return nil, err
	}
	relationships, err := r.listRelationships(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.New(entities, relationships), nil
}

// GetByID возвращает сущность с её свойствами.
func (r *EntityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error) {
	var e domain.Entity
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, title
		FROM entities
		WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity by id: %w", err)
	}

	if e.Properties, err = r.loadProperties(ctx, id); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EntityRepo) listEntities(ctx context.Context) ([]domain.Entity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, title
		FROM entities
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		var e domain.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Title); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entities {
		if entities[i].Properties, err = r.loadProperties(ctx, entities[i].ID); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

func (r *EntityRepo) loadProperties(ctx context.Context, entityID uuid.UUID) ([]domain.PropertyDef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_id, name, prop_type, options
		FROM entity_properties
		WHERE entity_id = $1
		ORDER BY name
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("load entity properties: %w", err)
	}
	defer rows.Close()

	var props []domain.PropertyDef
	for rows.Next() {
		var p domain.PropertyDef
		if err := rows.Scan(&p.ID, &p.EntityID, &p.Name, &p.Type, &p.Options); err != nil {
			return nil, fmt.Errorf("scan entity property: %w", err)
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

func (r *EntityRepo) listRelationships(ctx context.Context) ([]domain.Relationship, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, parent_entity_id, child_entity_id
		FROM relationships
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var rels []domain.Relationship
	for rows.Next() {
		var rel domain.Relationship
		if err := rows.Scan(&rel.ID, &rel.ParentEntityID, &rel.ChildEntityID); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}
