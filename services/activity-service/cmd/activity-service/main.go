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
	"github.com/cascadehq/cascade/libs/events"
	"github.com/cascadehq/cascade/libs/httpx"
	otelx "github.com/cascadehq/cascade/libs/otel"
	"github.com/cascadehq/cascade/libs/runtime"
	"github.com/cascadehq/cascade/libs/stream"
	"github.com/cascadehq/cascade/services/activity-service/internal/activity"
)

func main() {
	service := config.String("SERVICE_NAME", "activity-service")
	port, err := config.Port("PORT", "8085")
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

	brokers := config.String("KAFKA_BROKERS", "kafka:9092")
	busClient := bus.NewClient(service, bus.SplitBrokers(brokers), logger)
	defer func() { _ = busClient.Disconnect() }()

	consumer := stream.NewConsumer(busClient, logger)
	groupID := config.String("KAFKA_GROUP_ID", "activity-group")

	// Both trackers share one multicast subscription: the board/task feed
	// takes the resilient branch, the user feed a topic-filtered view.
	boardFeed := activity.NewTracker(logger)
	userFeed := activity.NewTracker(logger)
	boardCh := consumer.Resilient(
		config.Int("STREAM_RETRIES", 3),
		config.Duration("STREAM_RETRY_DELAY", time.Second),
	)
	userCh := consumer.FilterByTopic(events.TopicUserRegistered, events.TopicUserLoggedIn)

	if err := consumer.Connect(ctx, groupID, events.AllTopics, false); err != nil {
		logger.Error("stream connect failed", "err", err)
		panic(err)
	}
	go boardFeed.Run(boardCh)
	go userFeed.Run(userCh)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "kafka", Check: bus.ReadyCheck(brokers)},
	)
	serveFeed := func(tracker *activity.Tracker) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(tracker.Recent(limit))
		}
	}
	mux.HandleFunc("GET /api/activity", serveFeed(boardFeed))
	mux.HandleFunc("GET /api/activity/users", serveFeed(userFeed))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "activity")

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
