package runner

import (
	"context"
	"sync"
	"time"
)

// predecessorWaitTimeout — политика ожидания результата предыдущего шага:
// не дольше 20 секунд, после чего шаг продолжает без результата.
// Ожидание с потолком вместо бесконечного блокирования — вызывающие
// рассчитывают, что прогон никогда не зависает.
const predecessorWaitTimeout = 20 * time.Second

// resultBoard — табло завершения шагов одного execution.
//
// На каждый порядковый номер шага заводится канал, закрываемый
// при завершении шага (успешном или нет). Это замена наивного
// опроса «раз в секунду до 20 секунд»: семантика та же —
// дождаться или продолжить по таймауту, — но без сна в цикле.
type resultBoard struct {
	mu   sync.Mutex
	done map[int]chan struct{}
}

// newResultBoard создаёт табло для шагов с порядками 0..n-1.
func newResultBoard(n int) *resultBoard {
	done := make(map[int]chan struct{}, n)
	for i := 0; i < n; i++ {
		done[i] = make(chan struct{})
	}
	return &resultBoard{done: done}
}

// complete помечает шаг завершённым. Повторные вызовы безопасны.
func (b *resultBoard) complete(order int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.done[order]
	if !ok {
		return
	}
	select {
	case <-ch:
		// уже закрыт
	default:
		close(ch)
	}
}

// wait блокируется до завершения шага order, но не дольше
// predecessorWaitTimeout. Возвращает true, если шаг завершился,
// false — если сработал таймаут или отменён контекст (в обоих
// случаях вызывающий продолжает без результата).
func (b *resultBoard) wait(ctx context.Context, order int) bool {
	b.mu.Lock()
	ch, ok := b.done[order]
	b.mu.Unlock()

	if !ok {
		return false
	}

	timer := time.NewTimer(predecessorWaitTimeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
