package domain

import (
	"time"

	"github.com/google/uuid"
)

// User — пользователь платформы. Движок читает его только для
// контекста шаблонов и атрибуции вызовов backend'а.
type User struct {
	// ID — уникальный идентификатор пользователя.
	ID uuid.UUID `json:"id"`

	// TenantID — арендатор пользователя.
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`

	// Email — адрес пользователя.
	Email string `json:"email"`

	// Name — отображаемое имя.
	Name string `json:"name,omitempty"`

	// CreatedAt — время регистрации.
	CreatedAt time.Time `json:"created_at"`
}

// Tenant — арендатор (организация) платформы.
type Tenant struct {
	// ID — уникальный идентификатор арендатора.
	ID uuid.UUID `json:"id"`

	// Name — название организации.
	Name string `json:"name"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// Identity — от чьего имени выполняется execution.
// Оба поля могут быть nil: flow может выполняться вне тенанта.
type Identity struct {
	// TenantID — арендатор.
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`

	// UserID — пользователь.
	UserID *uuid.UUID `json:"user_id,omitempty"`
}
