// Covenant Orchestrator — выполняет workflow-задачи мониторинга.
//
// Orchestrator:
//   - Получает новые задачи из RabbitMQ (с фолбэком на polling БД)
//   - Запускает durable orchestration instance на каждую задачу
//   - Пропускает каждую попытку через rate limiter и circuit breaker
//   - Финализирует задачи и публикует результат
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Covenant/internal/activity"
	"github.com/shaiso/Covenant/internal/dispatcher"
	"github.com/shaiso/Covenant/internal/durable"
	"github.com/shaiso/Covenant/internal/entity"
	"github.com/shaiso/Covenant/internal/mq"
	"github.com/shaiso/Covenant/internal/orchestrator"
	"github.com/shaiso/Covenant/internal/repo"
	"github.com/shaiso/Covenant/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting covenant-orchestrator")

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
	taskRepo := repo.NewTaskRepo(pool)
	instanceRepo := repo.NewInstanceRepo(pool)
	entityRepo := repo.NewEntityRepo(pool)

	// Host durable entities
	host := entity.NewHost(entity.HostConfig{
		Store:  entityRepo,
		Logger: logger,
	})

	// Activities
	blobDir := os.Getenv("BLOB_DIR")
	if blobDir == "" {
		blobDir = "./data/blobs"
	}
	blobs, err := activity.NewFSBlobStore(blobDir)
	if err != nil {
		logger.Error("failed to create blob store", "error", err, "dir", blobDir)
		os.Exit(1)
	}

	resolver, err := loadWatchlist(os.Getenv("WATCHLIST_FILE"))
	if err != nil {
		logger.Error("failed to load watchlist", "error", err)
		os.Exit(1)
	}

	completer := activity.NewHTTPCompleter(activity.HTTPCompleterConfig{
		BaseURL: envOr("LLM_URL", "https://api.openai.com/v1"),
		Model:   envOr("LLM_MODEL", "gpt-4o-mini"),
		APIKey:  os.Getenv("LLM_API_KEY"),
	})

	registry := activity.NewRegistry(logger)
	activity.RegisterDefaults(registry,
		activity.NewScraper(activity.ScraperConfig{Blobs: blobs, Resolver: resolver}),
		activity.NewDiffer(blobs),
		activity.NewLLM(completer, blobs),
	)

	// Durable runtime
	runtime := durable.New(durable.Config{
		Store:      instanceRepo,
		Entities:   host,
		Activities: registry,
		Logger:     logger,
	})

	saga := orchestrator.New(orchestrator.Config{Logger: logger})

	controller := orchestrator.NewController(orchestrator.ControllerConfig{
		Entities: host,
		States:   entityRepo,
		Notifier: runtime,
		Logger:   logger,
	})

	// RabbitMQ
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err = mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	disp := dispatcher.New(dispatcher.Config{
		Runtime:    runtime,
		Saga:       saga,
		Controller: controller,
		Tasks:      taskRepo,
		Resumer:    instanceRepo,
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

	port := ":8083"
	if v := os.Getenv("ORCH_PORT"); v != "" {
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
	if err := disp.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("dispatcher error", "error", err)
	}

	// Даём запущенным instances завершиться
	runtime.Wait()
	logger.Info("covenant-orchestrator stopped")
}

// loadWatchlist читает JSON-файл вида {"company/policy": "url"}.
// Пустой путь даёт пустой resolver.
func loadWatchlist(path string) (activity.StaticResolver, error) {
	if path == "" {
		return activity.StaticResolver{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var resolver activity.StaticResolver
	if err := json.Unmarshal(data, &resolver); err != nil {
		return nil, err
	}
	return resolver, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
