package engine

import (
	"strings"

	"github.com/aymerick/raymond"
)

// Directive — расширение шаблонного языка.
//
// Директивы — это небольшие интерпретаторные конструкции поверх
// handlebars (switch/case/default, titled block). Они изолированы
// за этим интерфейсом, чтобы компилятор можно было расширять,
// не трогая оркестратор.
type Directive interface {
	// Name — имя helper'а в шаблоне.
	Name() string

	// Helper — функция-helper в формате raymond.
	Helper() any
}

// DefaultDirectives возвращает штатный набор директив.
func DefaultDirectives() []Directive {
	return []Directive{
		switchDirective{},
		caseDirective{},
		defaultDirective{},
		blockDirective{},
	}
}

// switchDataKey — ключ private data frame, через который
// case/default находят состояние объемлющего switch.
const switchDataKey = "promptflow.switch"

// switchState — состояние одного switch-блока.
// case и default мутируют matched через указатель в data frame.
type switchState struct {
	value   string
	matched bool
}

// switchDirective — {{#switch row.status}}...{{/switch}}.
//
// Вычисляет значение один раз и делает его доступным вложенным
// case/default. Сам по себе ничего не выводит, кроме тела.
type switchDirective struct{}

func (switchDirective) Name() string { return "switch" }

func (switchDirective) Helper() any {
	return func(value any, options *raymond.Options) string {
		frame := options.NewDataFrame()
		frame.Set(switchDataKey, &switchState{value: raymond.Str(value)})
		return options.FnData(frame)
	}
}

// caseDirective — {{#case "draft"}}...{{/case}} внутри switch.
// Тело выводится, если значение совпало и ни один case ещё не сработал.
type caseDirective struct{}

func (caseDirective) Name() string { return "case" }

func (caseDirective) Helper() any {
	return func(value any, options *raymond.Options) string {
		st, _ := options.Data(switchDataKey).(*switchState)
		if st == nil || st.matched {
			return ""
		}
		if st.value != raymond.Str(value) {
			return ""
		}
		st.matched = true
		return options.Fn()
	}
}

// defaultDirective — {{#default}}...{{/default}} внутри switch.
// Тело выводится, только если ни один case не сработал.
type defaultDirective struct{}

func (defaultDirective) Name() string { return "default" }

func (defaultDirective) Helper() any {
	return func(options *raymond.Options) string {
		st, _ := options.Data(switchDataKey).(*switchState)
		if st == nil || st.matched {
			return ""
		}
		return options.Fn()
	}
}

// blockDirective — {{#block title="Контекст:" footer="---"}}...{{/block}}.
//
// Выводит заголовок и подвал только когда тело блока непустое,
// чтобы опциональные секции не оставляли висящих заголовков.
type blockDirective struct{}

func (blockDirective) Name() string { return "block" }

func (blockDirective) Helper() any {
	return func(options *raymond.Options) string {
		body := strings.TrimSpace(options.Fn())
		if body == "" {
			return ""
		}

		var b strings.Builder
		if title := options.HashStr("title"); title != "" {
			b.WriteString(title)
			b.WriteString("\n")
		}
		b.WriteString(body)
		if footer := options.HashStr("footer"); footer != "" {
			b.WriteString("\n")
			b.WriteString(footer)
		}
		return b.String()
	}
}
