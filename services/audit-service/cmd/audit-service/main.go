package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cascadehq/cascade/libs/bus"
	"github.com/cascadehq/cascade/libs/config"
	"github.com/cascadehq/cascade/libs/db"
	"github.com/cascadehq/cascade/libs/events"
	"github.com/cascadehq/cascade/libs/httpx"
	otelx "github.com/cascadehq/cascade/libs/otel"
	"github.com/cascadehq/cascade/libs/runtime"
	"github.com/cascadehq/cascade/services/audit-service/internal/audit"
)

func main() {
	service := config.String("SERVICE_NAME", "audit-service")
	port, err := config.Port("PORT", "8084")
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

	repo := audit.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("audit schema setup failed", "err", err)
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "kafka:9092")
	busClient := bus.NewClient(service, bus.SplitBrokers(brokers), logger)
	defer func() { _ = busClient.Disconnect() }()

	// The audit log replays history on first start. Bulk churn topics
	// (board.updated carries full column/member snapshots) are left out.
	topics := []string{
		events.TopicUserRegistered,
		events.TopicUserLoggedIn,
		events.TopicBoardCreated,
		events.TopicTaskCreated,
		events.TopicTaskMoved,
		events.TopicTaskUpdated,
	}
	groupID := config.String("KAFKA_GROUP_ID", "audit-group")
	if err := busClient.ConnectConsumer(ctx, groupID, topics, true); err != nil {
		logger.Error("consumer connect failed", "err", err)
		panic(err)
	}

	sink := audit.NewSink(repo, logger)
	go func() {
		if err := busClient.Consume(ctx, sink.Handle); err != nil {
			logger.Error("consumer loop stopped", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: bus.ReadyCheck(brokers)},
	)
	mux.HandleFunc("GET /api/audit/events", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := repo.ListRecent(r.Context(), limit)
		if err != nil {
			logger.Error("audit list failed", "err", err)
			http.Error(w, "failed to list audit events", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	})

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "audit")

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
