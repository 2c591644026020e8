package api

import (
	"log/slog"

	"github.com/dkorolev/promptflow/internal/catalog"
	"github.com/dkorolev/promptflow/internal/mq"
	"github.com/dkorolev/promptflow/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	flows      *repo.FlowRepo
	executions *repo.ExecutionRepo
	schedules  *repo.ScheduleRepo
	rows       *repo.RowRepo
	catalog    *catalog.Catalog
	publisher  *mq.Publisher
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Flows      *repo.FlowRepo
	Executions *repo.ExecutionRepo
	Schedules  *repo.ScheduleRepo
	Rows       *repo.RowRepo
	Catalog    *catalog.Catalog
	Publisher  *mq.Publisher
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		flows:      cfg.Flows,
		executions: cfg.Executions,
		schedules:  cfg.Schedules,
		rows:       cfg.Rows,
		catalog:    cfg.Catalog,
		publisher:  cfg.Publisher,
		logger:     logger,
	}
}
