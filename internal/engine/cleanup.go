package engine

import (
	"regexp"
	"strings"
)

// Шаблоны пишутся руками, с вложенными условными блоками и отступами
// для читаемости. После рендеринга невыполнившиеся ветки оставляют
// в тексте пустые строки, табы и огрызки отступов — Cleanup приводит
// результат к аккуратной прозе.
var (
	// multiNewline — три и более подряд идущих перевода строки.
	multiNewline = regexp.MustCompile(`\n{3,}`)

	// commentBlock — HTML-комментарий вместе с завершающим переводом строки.
	commentBlock = regexp.MustCompile(`<!--[\s\S]*?-->\n?`)
)

// Cleanup — детерминированная пост-обработка срендеренного текста.
//
// Порядок фиксирован:
//  1. схлопнуть 3+ переводов строки до двух;
//  2. убрать табы;
//  3. убрать группы из четырёх пробелов (конвенция отступа шаблонов);
//  4. удалить HTML-комментарии вместе с их переводом строки;
//  5. повторить шаги 1–3 — удаление комментариев склеивает строки
//     и может породить новые артефакты.
//
// Cleanup идемпотентен: Cleanup(Cleanup(x)) == Cleanup(x).
func Cleanup(text string) string {
	text = cleanupPass(text)
	text = commentBlock.ReplaceAllString(text, "")
	return cleanupPass(text)
}

// cleanupPass — шаги 1–3.
func cleanupPass(text string) string {
	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = strings.ReplaceAll(text, "\t", "")
	text = strings.ReplaceAll(text, "    ", "")
	return text
}
