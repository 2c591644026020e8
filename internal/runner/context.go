package runner

import (
	"context"
	"fmt"

	"github.com/dkorolev/promptflow/internal/catalog"
	"github.com/dkorolev/promptflow/internal/domain"
	"github.com/dkorolev/promptflow/internal/engine"
)

// maxExpandDepth — глубина рекурсивного раскрытия связанных строк.
// Два уровня покрывают «строка и её дети с их детьми»; глубже —
// защита от циклов в связях.
const maxExpandDepth = 2

// ContextBuilder собирает контекст вычисления шаблонов.
//
// Сборка выполняет чтения (строка, связанные строки, арендатор,
// пользователь), но никогда ничего не пишет. Результат —
// JSON-сериализуемый объект.
type ContextBuilder struct {
	rows     RowReader
	identity IdentityReader
	catalog  *catalog.Catalog
}

// NewContextBuilder создаёт ContextBuilder.
func NewContextBuilder(rows RowReader, identity IdentityReader, cat *catalog.Catalog) *ContextBuilder {
	return &ContextBuilder{
		rows:     rows,
		identity: identity,
		catalog:  cat,
	}
}

// Build собирает контекст для одного execution.
//
// row может быть nil — обязательность строки проверяет оркестратор,
// не builder (его контракт — собрать то, что дали).
func (b *ContextBuilder) Build(ctx context.Context, identity domain.Identity, row *domain.Row, variables map[string]string) (*engine.Context, error) {
	session, err := b.buildSession(ctx, identity)
	if err != nil {
		return nil, err
	}

	var rowData map[string]any
	if row != nil {
		rowData, err = b.expandRow(ctx, row, maxExpandDepth)
		if err != nil {
			return nil, err
		}
	}

	return engine.NewContext(session, rowData, variables), nil
}

// buildSession собирает проекции пользователя и арендатора.
func (b *ContextBuilder) buildSession(ctx context.Context, identity domain.Identity) (map[string]any, error) {
	session := make(map[string]any)

	if identity.TenantID != nil {
		tenant, err := b.identity.GetTenant(ctx, *identity.TenantID)
		if err != nil {
			return nil, fmt.Errorf("load tenant: %w", err)
		}
		session["tenant"] = map[string]any{
			"id":   tenant.ID.String(),
			"name": tenant.Name,
		}
	}

	if identity.UserID != nil {
		user, err := b.identity.GetUser(ctx, *identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("load user: %w", err)
		}
		session["user"] = map[string]any{
			"id":    user.ID.String(),
			"email": user.Email,
			"name":  user.Name,
		}
	}

	return session, nil
}

// expandRow проецирует свойства строки и рекурсивно подвешивает
// дочерние строки под именем их сущности.
//
// Служебные поля (id, folio, временные метки, аудит) в проекцию
// не входят — шаблонам нужны только бизнес-свойства.
// Единственный ребёнок подвешивается объектом ({{row.product.name}}),
// несколько детей — списком.
func (b *ContextBuilder) expandRow(ctx context.Context, row *domain.Row, depth int) (map[string]any, error) {
	projection := make(map[string]any, len(row.Properties))
	for name, value := range row.Properties {
		projection[name] = value.Plain()
	}

	if depth <= 0 {
		return projection, nil
	}

	for _, rel := range b.catalog.ChildRelationships(row.EntityID) {
		childEntity := b.catalog.Entity(rel.ChildEntityID)
		if childEntity == nil {
			continue
		}

		children, err := b.rows.ListChildRows(ctx, rel.ID, row.ID)
		if err != nil {
			return nil, fmt.Errorf("load child rows of %s: %w", childEntity.Name, err)
		}
		if len(children) == 0 {
			continue
		}

		expanded := make([]map[string]any, len(children))
		for i := range children {
			child, err := b.expandRow(ctx, &children[i], depth-1)
			if err != nil {
				return nil, err
			}
			expanded[i] = child
		}

		if len(expanded) == 1 {
			projection[childEntity.Name] = expanded[0]
		} else {
			projection[childEntity.Name] = expanded
		}
	}

	return projection, nil
}
