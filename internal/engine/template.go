package engine

import (
	"github.com/aymerick/raymond"
)

// Compiler компилирует шаблон и контекст в итоговый prompt.
//
// Компиляция — чистая функция (шаблон, контекст) → текст:
// никаких обращений к хранилищам, никакого состояния между вызовами.
// Синтаксис шаблонов — handlebars:
//
//	Name: {{row.product.name}}
//	Slogan for {{promptFlow.results.[0]}}
//	{{#switch variable.tone}}{{#case "formal"}}...{{/case}}{{#default}}...{{/default}}{{/switch}}
type Compiler struct {
	helpers map[string]any
}

// NewCompiler создаёт компилятор с набором директив.
// Без аргументов — штатный набор (DefaultDirectives).
func NewCompiler(directives ...Directive) *Compiler {
	if len(directives) == 0 {
		directives = DefaultDirectives()
	}

	helpers := make(map[string]any, len(directives))
	for _, d := range directives {
		helpers[d.Name()] = d.Helper()
	}
	return &Compiler{helpers: helpers}
}

// Compile рендерит шаблон против контекста и применяет Cleanup.
//
// title используется только в сообщении об ошибке — чтобы падение
// компиляции называло виновный шаблон, а не позицию в чужом тексте.
func (c *Compiler) Compile(title, source string, ctx *Context) (string, error) {
	tpl, err := raymond.Parse(source)
	if err != nil {
		return "", &CompileError{TemplateTitle: title, Err: err}
	}

	tpl.RegisterHelpers(c.helpers)

	out, err := tpl.Exec(ctx.Snapshot())
	if err != nil {
		return "", &CompileError{TemplateTitle: title, Err: err}
	}

	return Cleanup(out), nil
}
