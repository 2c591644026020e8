// PromptFlow API — HTTP API для управления flows, executions и schedules.
//
// API:
//   - CRUD для flows (настройка цепочек промптов)
//   - Запуск executions и просмотр их шагов
//   - CRUD для schedules
//
// Выполнение происходит в promptflow-runner; API только создаёт записи
// и публикует события в RabbitMQ.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkorolev/promptflow/internal/api"
	"github.com/dkorolev/promptflow/internal/mq"
	"github.com/dkorolev/promptflow/internal/repo"
	"github.com/dkorolev/promptflow/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptflow_api_http_requests_total",
		Help: "Total HTTP requests handled by promptflow-api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting promptflow-api")

	// Подключаемся к базе данных
	pool, err := repo.NewPool(context.Background())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Создаём репозитории
	flowRepo := repo.NewFlowRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)
	scheduleRepo := repo.NewScheduleRepo(pool)
	rowRepo := repo.NewRowRepo(pool)
	entityRepo := repo.NewEntityRepo(pool)

	// Загружаем каталог сущностей
	cat, err := entityRepo.LoadCatalog(context.Background())
	if err != nil {
		logger.Error("failed to load entity catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("entity catalog loaded", "entities", len(cat.Entities()))

	// RabbitMQ: опционален — без него executions подхватит polling runner'а
	var publisher *mq.Publisher
	mqConn, err := mq.Connect(os.Getenv("RABBITMQ_URL"), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, executions will be picked up by polling", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.DeclareTopology(mqConn); err != nil {
			logger.Warn("failed to declare topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn)
	}

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Flows:      flowRepo,
		Executions: executionRepo,
		Schedules:  scheduleRepo,
		Rows:       rowRepo,
		Catalog:    cat,
		Publisher:  publisher,
		Logger:     logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
