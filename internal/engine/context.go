package engine

import "sync"

// Context — контекст вычисления шаблонов.
//
// Это данные, против которых компилируется шаблон:
//
//	{{ session.user.email }}
//	{{ row.product.name }}
//	{{ variable.tone }}
//	{{ promptFlow.results.[0] }}
//
// session, row и variable неизменяемы после сборки; results
// пополняется оркестратором по мере завершения шагов —
// доступ к нему потокобезопасен.
type Context struct {
	// Session — проекции пользователя и арендатора.
	Session map[string]any

	// Row — свойства строки с рекурсивно раскрытыми связанными строками.
	Row map[string]any

	// Variable — свободные именованные переменные.
	Variable map[string]string

	mu      sync.RWMutex
	results []string
}

// NewContext создаёт новый контекст.
// Nil-аргументы заменяются пустыми картами, чтобы шаблоны
// спокойно разыменовывали отсутствующие ветки.
func NewContext(session, row map[string]any, variables map[string]string) *Context {
	if session == nil {
		session = make(map[string]any)
	}
	if row == nil {
		row = make(map[string]any)
	}
	if variables == nil {
		variables = make(map[string]string)
	}
	return &Context{
		Session:  session,
		Row:      row,
		Variable: variables,
	}
}

// SetResult записывает текст результата шага с порядковым номером order.
// Слайс расширяется по необходимости; пропущенные позиции — пустые строки.
func (c *Context) SetResult(order int, text string) {
	if order < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.results) <= order {
		c.results = append(c.results, "")
	}
	c.results[order] = text
}

// Result возвращает текст результата шага order и признак его наличия.
func (c *Context) Result(order int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if order < 0 || order >= len(c.results) {
		return "", false
	}
	return c.results[order], true
}

// Snapshot возвращает контекст в виде данных для рендеринга.
// Результаты копируются, чтобы рендеринг не гонялся с SetResult.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	results := make([]string, len(c.results))
	copy(results, c.results)
	c.mu.RUnlock()

	return map[string]any{
		"session":  c.Session,
		"row":      c.Row,
		"variable": c.Variable,
		"promptFlow": map[string]any{
			"results": results,
		},
	}
}
