package runner

import "errors"

// Ошибки запуска execution.
var (
	// ErrExecutionNotPending — execution уже обрабатывается или завершён.
	ErrExecutionNotPending = errors.New("execution is not pending")

	// ErrExecutionNotFound — execution не найден.
	ErrExecutionNotFound = errors.New("execution not found")
)

// ValidationError — входные данные запуска не соответствуют flow.
//
// Выбрасывается до выполнения какого-либо шага (fail fast):
// flow объявляет input entity, а строка не передана или
// принадлежит другой сущности.
type ValidationError struct {
	// Message — описание нарушения.
	Message string
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError проверяет, является ли ошибка ошибкой валидации.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
