package api

import (
	"log/slog"

	"github.com/shaiso/Covenant/internal/durable"
	"github.com/shaiso/Covenant/internal/mq"
	"github.com/shaiso/Covenant/internal/orchestrator"
	"github.com/shaiso/Covenant/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	taskRepo     *repo.TaskRepo
	scheduleRepo *repo.ScheduleRepo
	runtime      *durable.Runtime
	controller   *orchestrator.Controller
	publisher    *mq.Publisher
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	TaskRepo     *repo.TaskRepo
	ScheduleRepo *repo.ScheduleRepo
	Runtime      *durable.Runtime
	Controller   *orchestrator.Controller
	Publisher    *mq.Publisher
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		taskRepo:     cfg.TaskRepo,
		scheduleRepo: cfg.ScheduleRepo,
		runtime:      cfg.Runtime,
		controller:   cfg.Controller,
		publisher:    cfg.Publisher,
		logger:       cfg.Logger,
	}
}
