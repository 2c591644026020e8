// Package telemetry обеспечивает наблюдаемость движка.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики executions, шагов и backend-вызовов
//
// API, runner и scheduler используют единый формат логирования
// и экспортируют метрики на /metrics со своего порта.
package telemetry
