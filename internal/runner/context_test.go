package runner

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/catalog"
	"github.com/dkorolev/promptflow/internal/domain"
)

// childRows — RowReader с заданными детьми по relationship ID.
type childRows struct {
	children map[uuid.UUID][]domain.Row
}

func (r *childRows) GetRow(_ context.Context, _ uuid.UUID) (*domain.Row, error) {
	return nil, nil
}

func (r *childRows) ListChildRows(_ context.Context, relationshipID, _ uuid.UUID) ([]domain.Row, error) {
	return r.children[relationshipID], nil
}

func TestContextBuilder_Session(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()
	identity := &memIdentity{
		user:   &domain.User{ID: userID, Email: "dev@example.com", Name: "Dev"},
		tenant: &domain.Tenant{ID: tenantID, Name: "Acme"},
	}

	b := NewContextBuilder(&memRows{}, identity, catalog.New(nil, nil))
	evalCtx, err := b.Build(context.Background(), domain.Identity{TenantID: &tenantID, UserID: &userID}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	user, ok := evalCtx.Session["user"].(map[string]any)
	if !ok {
		t.Fatal("session should contain user")
	}
	if user["email"] != "dev@example.com" {
		t.Errorf("user.email = %v", user["email"])
	}
	tenant, ok := evalCtx.Session["tenant"].(map[string]any)
	if !ok {
		t.Fatal("session should contain tenant")
	}
	if tenant["name"] != "Acme" {
		t.Errorf("tenant.name = %v", tenant["name"])
	}
}

func TestContextBuilder_SessionWithoutIdentity(t *testing.T) {
	b := NewContextBuilder(&memRows{}, &memIdentity{}, catalog.New(nil, nil))

	// Nil identity — допустимо: session просто пуст
	evalCtx, err := b.Build(context.Background(), domain.Identity{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evalCtx.Session) != 0 {
		t.Errorf("session should be empty, got %v", evalCtx.Session)
	}
}

func TestContextBuilder_ExpandRow(t *testing.T) {
	articleEntity := domain.Entity{ID: uuid.New(), Name: "article"}
	productEntity := domain.Entity{ID: uuid.New(), Name: "product"}
	tagEntity := domain.Entity{ID: uuid.New(), Name: "tag"}

	relProduct := domain.Relationship{ID: uuid.New(), ParentEntityID: articleEntity.ID, ChildEntityID: productEntity.ID}
	relTag := domain.Relationship{ID: uuid.New(), ParentEntityID: articleEntity.ID, ChildEntityID: tagEntity.ID}

	cat := catalog.New(
		[]domain.Entity{articleEntity, productEntity, tagEntity},
		[]domain.Relationship{relProduct, relTag},
	)

	row := &domain.Row{
		ID:       uuid.New(),
		EntityID: articleEntity.ID,
		Properties: map[string]domain.PropertyValue{
			"title": domain.TextValue("How to widget"),
			"words": domain.NumberValue(1200),
		},
	}

	rows := &childRows{children: map[uuid.UUID][]domain.Row{
		relProduct.ID: {{
			ID:         uuid.New(),
			EntityID:   productEntity.ID,
			Properties: map[string]domain.PropertyValue{"name": domain.TextValue("Widget")},
		}},
		relTag.ID: {
			{ID: uuid.New(), EntityID: tagEntity.ID, Properties: map[string]domain.PropertyValue{"label": domain.TextValue("diy")}},
			{ID: uuid.New(), EntityID: tagEntity.ID, Properties: map[string]domain.PropertyValue{"label": domain.TextValue("howto")}},
		},
	}}

	b := NewContextBuilder(rows, &memIdentity{}, cat)
	evalCtx, err := b.Build(context.Background(), domain.Identity{}, row, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Свойства проецируются через Plain
	if evalCtx.Row["title"] != "How to widget" {
		t.Errorf("row.title = %v", evalCtx.Row["title"])
	}
	if evalCtx.Row["words"] != float64(1200) {
		t.Errorf("row.words = %v", evalCtx.Row["words"])
	}

	// Единственный ребёнок — объект
	product, ok := evalCtx.Row["product"].(map[string]any)
	if !ok {
		t.Fatalf("row.product should be an object, got %T", evalCtx.Row["product"])
	}
	if product["name"] != "Widget" {
		t.Errorf("row.product.name = %v", product["name"])
	}

	// Несколько детей — список
	tags, ok := evalCtx.Row["tag"].([]map[string]any)
	if !ok {
		t.Fatalf("row.tag should be a list, got %T", evalCtx.Row["tag"])
	}
	if len(tags) != 2 || tags[0]["label"] != "diy" {
		t.Errorf("row.tag = %v", tags)
	}
}
