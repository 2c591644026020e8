// PromptFlow Runner — выполняет executions.
//
// Runner:
//   - Получает pending executions из RabbitMQ (с polling fallback)
//   - Рендерит шаблоны, вызывает генеративный backend
//   - Применяет outputs к строкам
//   - Публикует событие о завершении
//
// Runners масштабируются горизонтально: дедупликация выполняется
// по статусу execution в базе.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkorolev/promptflow/internal/backend"
	"github.com/dkorolev/promptflow/internal/mq"
	"github.com/dkorolev/promptflow/internal/outputs"
	"github.com/dkorolev/promptflow/internal/repo"
	"github.com/dkorolev/promptflow/internal/runner"
	"github.com/dkorolev/promptflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting promptflow-runner")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Создаём репозитории
	flowRepo := repo.NewFlowRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)
	rowRepo := repo.NewRowRepo(pool)
	identityRepo := repo.NewIdentityRepo(pool)
	entityRepo := repo.NewEntityRepo(pool)

	// Загружаем каталог сущностей
	cat, err := entityRepo.LoadCatalog(ctx)
	if err != nil {
		logger.Error("failed to load entity catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("entity catalog loaded", "entities", len(cat.Entities()))

	// RabbitMQ
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	mqConn, err = mq.Connect(os.Getenv("RABBITMQ_URL"), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.DeclareTopology(mqConn); err != nil {
			logger.Warn("failed to declare topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn)
	}

	// Выбираем backend: debug echo для локальной разработки,
	// иначе HTTP клиент к генеративному API.
	var completer backend.Completer
	if os.Getenv("PROMPTFLOW_DEBUG") != "" {
		completer = backend.NewDebugCompleter()
		logger.Info("using debug completer")
	} else {
		completer = backend.NewHTTPCompleter(backend.HTTPConfig{
			BaseURL: os.Getenv("BACKEND_URL"),
			APIKey:  os.Getenv("BACKEND_API_KEY"),
		})
		logger.Info("using HTTP completer", "base_url", os.Getenv("BACKEND_URL"))
	}

	// Собираем runner
	r := runner.New(runner.Config{
		Store:      executionRepo,
		Contexts:   runner.NewContextBuilder(rowRepo, identityRepo, cat),
		Executor:   runner.NewStepExecutor(executionRepo, completer, logger),
		Applicator: outputs.NewApplicator(rowRepo, cat, logger),
		Logger:     logger,
	})

	svc := runner.NewService(runner.ServiceConfig{
		Runner:     r,
		Executions: executionRepo,
		Flows:      flowRepo,
		Rows:       rowRepo,
		Conn:       mqConn,
		Publisher:  publisher,
		Logger:     logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("RUNNER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Блокируется до отмены контекста
	if err := svc.Start(ctx); err != nil {
		logger.Error("runner service error", "error", err)
		os.Exit(1)
	}

	logger.Info("promptflow-runner stopped")
}
