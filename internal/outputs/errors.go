package outputs

import (
	"errors"
	"fmt"
)

// ConfigurationError — output сконфигурирован так, что применить
// его невозможно: нет обязательной строки, нет связи parent/child,
// неизвестный тип output'а.
//
// Не ловится применителем — уходит вызывающему с префиксом
// имени output'а, уже применённые outputs не откатываются.
type ConfigurationError struct {
	// Message — описание проблемы конфигурации.
	Message string
}

// Error реализует интерфейс error.
func (e *ConfigurationError) Error() string {
	return e.Message
}

// NewConfigurationError создаёт ошибку конфигурации.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// IsConfigurationError проверяет, является ли ошибка ошибкой конфигурации.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
