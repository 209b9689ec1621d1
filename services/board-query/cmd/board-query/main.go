package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cascadehq/cascade/libs/bus"
	"github.com/cascadehq/cascade/libs/config"
	"github.com/cascadehq/cascade/libs/db"
	"github.com/cascadehq/cascade/libs/docstore"
	"github.com/cascadehq/cascade/libs/events"
	"github.com/cascadehq/cascade/libs/httpx"
	otelx "github.com/cascadehq/cascade/libs/otel"
	"github.com/cascadehq/cascade/libs/runtime"
	"github.com/cascadehq/cascade/services/board-query/internal/cache"
	"github.com/cascadehq/cascade/services/board-query/internal/handlers"
	"github.com/cascadehq/cascade/services/board-query/internal/invalidator"
	"github.com/cascadehq/cascade/services/board-query/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "board-query")
	port, err := config.Port("PORT", "8082")
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

	redisOpts, err := redis.ParseURL(config.String("REDIS_URL", "redis://redis:6379"))
	if err != nil {
		logger.Error("invalid redis url", "err", err)
		panic(err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	boardReader := storage.NewBoardReader(docstore.NewPgCollection(pool, "boards"))
	taskReader := storage.NewTaskReader(docstore.NewPgCollection(pool, "tasks"))
	readCache := cache.New(cache.NewRedisStore(rdb), logger)
	queryHandler := handlers.NewQueryHandler(boardReader, taskReader, readCache, logger)

	brokers := config.String("KAFKA_BROKERS", "kafka:9092")
	busClient := bus.NewClient(service, bus.SplitBrokers(brokers), logger)
	defer func() { _ = busClient.Disconnect() }()

	topics := []string{
		events.TopicBoardCreated,
		events.TopicBoardUpdated,
		events.TopicBoardDeleted,
		events.TopicTaskCreated,
		events.TopicTaskUpdated,
		events.TopicTaskMoved,
		events.TopicTaskDeleted,
	}
	groupID := config.String("KAFKA_GROUP_ID", "board-query-group")
	if err := busClient.ConnectConsumer(ctx, groupID, topics, false); err != nil {
		logger.Error("consumer connect failed", "err", err)
		panic(err)
	}

	inv := invalidator.New(readCache, boardReader, logger)
	go func() {
		if err := busClient.Consume(ctx, inv.Handle); err != nil {
			logger.Error("consumer loop stopped", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: bus.ReadyCheck(brokers)},
		runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}},
	)
	mux.HandleFunc("GET /api/boards", queryHandler.ListBoards)
	mux.HandleFunc("GET /api/boards/public", queryHandler.ListPublicBoards)
	mux.HandleFunc("GET /api/boards/{id}", queryHandler.GetBoard)
	mux.HandleFunc("GET /api/boards/{id}/tasks", queryHandler.GetBoardTasks)
	mux.HandleFunc("GET /api/tasks/{id}", queryHandler.GetTask)

	// Read traffic is rate limited across replicas via Redis; the limiter
	// fails open so a cache outage never blocks reads.
	limiter := httpx.NewRedisRateLimiter(rdb,
		config.Int("RATE_LIMIT_REQUESTS", 600),
		config.Duration("RATE_LIMIT_WINDOW", time.Minute),
		service,
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		limiter.Middleware(logger, true),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "board-query")

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
