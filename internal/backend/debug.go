package backend

import (
	"context"
	"fmt"
	"time"
)

// debugDelay — искусственная задержка debug-ответа,
// чтобы тайминги шагов оставались ненулевыми.
const debugDelay = 300 * time.Millisecond

// DebugCompleter возвращает синтетический ответ без обращения к backend'у.
//
// Включается явным конфигурационным флагом (PROMPTFLOW_DEBUG у бинарей),
// никогда не выводится из окружения неявно.
type DebugCompleter struct{}

// NewDebugCompleter создаёт debug-клиента.
func NewDebugCompleter() *DebugCompleter {
	return &DebugCompleter{}
}

// Complete возвращает placeholder после короткой паузы.
func (c *DebugCompleter) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-time.After(debugDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return fmt.Sprintf("[debug] model=%s prompt_len=%d", req.Model, len(req.Prompt)), nil
}
