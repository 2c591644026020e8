package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Регистрируются в default registry,
// экспортируются через promhttp на /metrics каждого сервиса.
var (
	// ExecutionsTotal — количество завершённых executions по статусам.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptflow_executions_total",
		Help: "Completed executions by final status.",
	}, []string{"status"})

	// ExecutionDuration — продолжительность executions.
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptflow_execution_duration_seconds",
		Help:    "Execution duration from running to terminal status.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// StepsTotal — количество завершённых шагов по статусам.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptflow_steps_total",
		Help: "Completed step results by final status.",
	}, []string{"status"})

	// BackendRequestDuration — продолжительность вызовов backend'а.
	BackendRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptflow_backend_request_duration_seconds",
		Help:    "Generative backend request duration.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// HTTPRequestDuration — продолжительность HTTP запросов к API.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptflow_http_request_duration_seconds",
		Help:    "API request duration by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	// SchedulesFired — количество запусков по расписанию.
	SchedulesFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptflow_schedules_fired_total",
		Help: "Executions created by the scheduler.",
	})
)
