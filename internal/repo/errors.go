package repo

import "errors"

// Общие ошибки репозиториев. Хендлеры API мапят их в HTTP статусы.
var (
	// ErrNotFound — запись отсутствует в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — нарушение уникальности (дубликат flow и т.п.).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — операция недопустима для текущего статуса записи.
	ErrInvalidState = errors.New("invalid state")
)
