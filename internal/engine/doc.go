// Package engine содержит компилятор prompt-шаблонов.
//
// Включает:
//   - context.go   — контекст вычисления (session, row, variable, results)
//   - template.go  — компиляция handlebars-шаблона против контекста
//   - directive.go — расширения языка (switch/case/default, block)
//   - cleanup.go   — детерминированная пост-обработка текста
//
// Engine отвечает за превращение пары (шаблон, контекст) в итоговый
// prompt; обращений к хранилищам и сети здесь нет.
package engine
