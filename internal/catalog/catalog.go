// Package catalog — явный каталог бизнес-сущностей.
//
// Заменяет глобальный реестр сущностей: каталог создаётся один раз
// при старте (из БД или вручную в тестах) и передаётся зависимостям
// конструктором — никакого ambient-состояния.
package catalog

import (
	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/domain"
)

// Catalog — неизменяемый снимок сущностей и связей между ними.
type Catalog struct {
	entities      map[uuid.UUID]*domain.Entity
	relationships []domain.Relationship
}

// New создаёт каталог из списка сущностей и связей.
func New(entities []domain.Entity, relationships []domain.Relationship) *Catalog {
	byID := make(map[uuid.UUID]*domain.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}
	return &Catalog{
		entities:      byID,
		relationships: relationships,
	}
}

// Entity возвращает сущность по ID. Nil, если сущность не известна.
func (c *Catalog) Entity(id uuid.UUID) *domain.Entity {
	return c.entities[id]
}

// Entities возвращает все сущности каталога.
func (c *Catalog) Entities() []domain.Entity {
	result := make([]domain.Entity, 0, len(c.entities))
	for _, e := range c.entities {
		result = append(result, *e)
	}
	return result
}

// FindRelationship ищет связь parent/child между двумя сущностями.
// Возвращает nil, если связь не сконфигурирована.
func (c *Catalog) FindRelationship(parentEntityID, childEntityID uuid.UUID) *domain.Relationship {
	for i := range c.relationships {
		r := &c.relationships[i]
		if r.ParentEntityID == parentEntityID && r.ChildEntityID == childEntityID {
			return r
		}
	}
	return nil
}

// ChildRelationships возвращает все связи, где сущность — родитель.
func (c *Catalog) ChildRelationships(parentEntityID uuid.UUID) []domain.Relationship {
	var result []domain.Relationship
	for _, r := range c.relationships {
		if r.ParentEntityID == parentEntityID {
			result = append(result, r)
		}
	}
	return result
}
