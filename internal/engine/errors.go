package engine

import "errors"

// CompileError — ошибка компиляции шаблона.
//
// Ловится на границе step executor'а и записывается в StepResult.Error;
// никогда не роняет execution целиком.
type CompileError struct {
	// TemplateTitle — имя шаблона, вызвавшего ошибку.
	TemplateTitle string

	// Err — базовая ошибка парсинга или рендеринга.
	Err error
}

// Error реализует интерфейс error.
func (e *CompileError) Error() string {
	return "compile template \"" + e.TemplateTitle + "\": " + e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// IsCompileError проверяет, является ли ошибка ошибкой компиляции.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
