package domain

// ExecutionStatus — статус выполнения execution.
//
// Жизненный цикл:
//
//	pending → running → success
//	                  ↘ error
type ExecutionStatus string

const (
	// ExecutionStatusPending — execution создан, но ещё не начал выполняться.
	ExecutionStatusPending ExecutionStatus = "pending"

	// ExecutionStatusRunning — execution в процессе выполнения.
	ExecutionStatusRunning ExecutionStatus = "running"

	// ExecutionStatusSuccess — все шаги завершились успешно.
	ExecutionStatusSuccess ExecutionStatus = "success"

	// ExecutionStatusError — execution завершился с ошибкой.
	ExecutionStatusError ExecutionStatus = "error"
)

// IsTerminal возвращает true, если статус финальный (execution завершён).
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusError:
		return true
	default:
		return false
	}
}

// StepStatus — статус выполнения одного шага (StepResult).
//
// Переходы монотонны: pending → running → {success, error}.
// Шаг никогда не возвращается в pending или running из терминального
// состояния. Шаг, оставшийся pending в завершённом execution,
// означает «не выполнялся» (прерванный sequential-прогон).
type StepStatus string

const (
	// StepStatusPending — шаг создан, но ещё не выполнялся.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning — шаг выполняется.
	StepStatusRunning StepStatus = "running"

	// StepStatusSuccess — шаг успешно завершён, response заполнен.
	StepStatusSuccess StepStatus = "success"

	// StepStatusError — шаг завершился с ошибкой, error заполнен.
	StepStatusError StepStatus = "error"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusSuccess, StepStatusError:
		return true
	default:
		return false
	}
}

// ExecutionType — стратегия выполнения шагов flow.
type ExecutionType string

const (
	// ExecutionTypeSequential — шаги выполняются строго по возрастанию order.
	// Результат шага i-1 доступен шаблону шага i через promptFlow.results.
	ExecutionTypeSequential ExecutionType = "sequential"

	// ExecutionTypeParallel — все шаги запускаются одновременно.
	// Межшаговые зависимости данных не гарантируются.
	ExecutionTypeParallel ExecutionType = "parallel"
)

// OutputType — тип декларативного output'а flow.
type OutputType string

const (
	// OutputTypeCreateRow — создать новую строку целевой сущности.
	OutputTypeCreateRow OutputType = "createRow"

	// OutputTypeUpdateCurrentRow — обновить строку, с которой запущен flow.
	OutputTypeUpdateCurrentRow OutputType = "updateCurrentRow"

	// OutputTypeCreateChildRow — создать дочернюю строку, привязанную
	// к исходной через сконфигурированную связь parent/child.
	OutputTypeCreateChildRow OutputType = "createChildRow"
)
