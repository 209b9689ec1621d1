package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cascadehq/cascade/libs/bus"
	"github.com/cascadehq/cascade/libs/config"
	"github.com/cascadehq/cascade/libs/db"
	"github.com/cascadehq/cascade/libs/docstore"
	"github.com/cascadehq/cascade/libs/events"
	"github.com/cascadehq/cascade/libs/httpx"
	otelx "github.com/cascadehq/cascade/libs/otel"
	"github.com/cascadehq/cascade/libs/runtime"
	"github.com/cascadehq/cascade/services/board-command/internal/handlers"
	"github.com/cascadehq/cascade/services/board-command/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "board-command")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	boardCol := docstore.NewPgCollection(pool, "boards")
	taskCol := docstore.NewPgCollection(pool, "tasks")
	if err := boardCol.EnsureSchema(ctx); err != nil {
		logger.Error("boards schema setup failed", "err", err)
		panic(err)
	}
	if err := taskCol.EnsureSchema(ctx); err != nil {
		logger.Error("tasks schema setup failed", "err", err)
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "kafka:9092")
	busClient := bus.NewClient(service, bus.SplitBrokers(brokers), logger)
	if err := busClient.ConnectProducer(ctx); err != nil {
		logger.Error("producer connect failed", "err", err)
		panic(err)
	}
	defer func() { _ = busClient.Disconnect() }()

	publisher := events.NewPublisher(busClient, logger)
	boardRepo := storage.NewBoardRepository(boardCol)
	taskRepo := storage.NewTaskRepository(taskCol)
	boardHandler := handlers.NewBoardHandler(boardRepo, taskRepo, publisher, logger)
	taskHandler := handlers.NewTaskHandler(boardRepo, taskRepo, publisher, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: bus.ReadyCheck(brokers)},
	)
	mux.HandleFunc("POST /api/boards", boardHandler.Create)
	mux.HandleFunc("PUT /api/boards/{id}", boardHandler.Update)
	mux.HandleFunc("DELETE /api/boards/{id}", boardHandler.Delete)
	mux.HandleFunc("POST /api/boards/{id}/join", boardHandler.Join)
	mux.HandleFunc("POST /api/boards/{id}/columns", boardHandler.AddColumn)
	mux.HandleFunc("PUT /api/boards/{id}/columns/{columnId}", boardHandler.UpdateColumn)
	mux.HandleFunc("DELETE /api/boards/{id}/columns/{columnId}", boardHandler.DeleteColumn)
	mux.HandleFunc("POST /api/boards/{id}/tags", boardHandler.AddTag)
	mux.HandleFunc("DELETE /api/boards/{id}/tags/{tagId}", boardHandler.DeleteTag)
	mux.HandleFunc("POST /api/tasks", taskHandler.Create)
	mux.HandleFunc("PUT /api/tasks/{id}", taskHandler.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", taskHandler.Delete)
	mux.HandleFunc("PATCH /api/tasks/{id}/move", taskHandler.Move)
	mux.HandleFunc("PATCH /api/tasks/{id}/reorder", taskHandler.Reorder)

	limiter := httpx.NewRateLimiter(
		config.Int("RATE_LIMIT_REQUESTS", 120),
		config.Duration("RATE_LIMIT_WINDOW", time.Minute),
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		limiter.Middleware(),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "board-command")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
