package runner

import (
	"context"

	"github.com/google/uuid"

	"github.com/dkorolev/promptflow/internal/domain"
)

// ExecutionStore — персистентность executions и step results.
//
// Каждый StepResult пишется только выполняющим его шагом
// (плюс первоначальное создание оркестратором), поэтому
// блокировок поверх хранилища не требуется.
type ExecutionStore interface {
	// CreateExecution создаёт execution вместе со всеми его step results.
	CreateExecution(ctx context.Context, exec *domain.Execution) error

	// UpdateExecution обновляет статус, тайминги и ошибку execution.
	UpdateExecution(ctx context.Context, exec *domain.Execution) error

	// UpdateStep обновляет один step result.
	UpdateStep(ctx context.Context, step *domain.StepResult) error
}

// RowReader — чтение строк и связанных строк для контекста шаблонов.
type RowReader interface {
	// GetRow возвращает строку по ID.
	GetRow(ctx context.Context, id uuid.UUID) (*domain.Row, error)

	// ListChildRows возвращает дочерние строки по связи.
	ListChildRows(ctx context.Context, relationshipID, parentRowID uuid.UUID) ([]domain.Row, error)
}

// IdentityReader — чтение пользователей и арендаторов. Только чтение.
type IdentityReader interface {
	// GetUser возвращает пользователя по ID.
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetTenant возвращает арендатора по ID.
	GetTenant(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
}
