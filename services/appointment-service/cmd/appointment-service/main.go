package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/carelinkhq/carelink/libs/config"
	"github.com/carelinkhq/carelink/libs/db"
	"github.com/carelinkhq/carelink/libs/eventx"
	"github.com/carelinkhq/carelink/libs/httpx"
	"github.com/carelinkhq/carelink/libs/kafkax"
	otelx "github.com/carelinkhq/carelink/libs/otel"
	"github.com/carelinkhq/carelink/libs/runtime"
	"github.com/carelinkhq/carelink/services/appointment-service/internal/handlers"
	"github.com/carelinkhq/carelink/services/appointment-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "appointment-service")
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

	publisher, err := eventx.Open(ctx, logger, eventx.Config{
		Brokers: config.String("KAFKA_BROKERS", "kafka:9092"),
	})
	if err != nil {
		logger.Error("broker connection failed", "err", err)
		panic(err)
	}
	defer publisher.Close()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", "kafka:9092"))},
	)
	handlers.New(storage.NewRepository(pool), publisher, logger).Register(mux)

	rateLimit, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		panic(err)
	}
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.NewRateLimiter(rateLimit, time.Minute).Middleware(),
	)
	handler = otelhttp.NewHandler(handler, "appointment")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
