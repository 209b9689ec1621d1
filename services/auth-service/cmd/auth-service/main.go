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
	"github.com/cascadehq/cascade/services/auth-service/internal/handlers"
	"github.com/cascadehq/cascade/services/auth-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8080")
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

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
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

	userCol := docstore.NewPgCollection(pool, "users")
	if err := userCol.EnsureSchema(ctx); err != nil {
		logger.Error("users schema setup failed", "err", err)
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "kafka:9092")
	busClient := bus.NewClient(service, bus.SplitBrokers(brokers), logger)
	if err := busClient.ConnectProducer(ctx); err != nil {
		logger.Error("producer connect failed", "err", err)
		panic(err)
	}
	defer func() { _ = busClient.Disconnect() }()

	authHandler := handlers.NewAuthHandler(
		storage.NewUserRepository(userCol),
		events.NewPublisher(busClient, logger),
		jwtSecret,
		config.Duration("TOKEN_TTL", 24*time.Hour),
		logger,
	)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: bus.ReadyCheck(brokers)},
	)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/auth/me", authHandler.Me)

	// Credential endpoints get a tight per-client budget.
	limiter := httpx.NewRateLimiter(
		config.Int("RATE_LIMIT_REQUESTS", 30),
		config.Duration("RATE_LIMIT_WINDOW", time.Minute),
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
		limiter.Middleware(),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "auth")

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
