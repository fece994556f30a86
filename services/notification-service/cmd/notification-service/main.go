package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/carelinkhq/carelink/libs/config"
	"github.com/carelinkhq/carelink/libs/db"
	"github.com/carelinkhq/carelink/libs/eventx"
	"github.com/carelinkhq/carelink/libs/httpx"
	"github.com/carelinkhq/carelink/libs/kafkax"
	otelx "github.com/carelinkhq/carelink/libs/otel"
	"github.com/carelinkhq/carelink/libs/runtime"
	"github.com/carelinkhq/carelink/services/notification-service/internal/channel"
	"github.com/carelinkhq/carelink/services/notification-service/internal/consumer"
	"github.com/carelinkhq/carelink/services/notification-service/internal/dispatch"
	"github.com/carelinkhq/carelink/services/notification-service/internal/email"
	"github.com/carelinkhq/carelink/services/notification-service/internal/handlers"
	"github.com/carelinkhq/carelink/services/notification-service/internal/inbox"
	"github.com/carelinkhq/carelink/services/notification-service/internal/push"
	"github.com/carelinkhq/carelink/services/notification-service/internal/sms"
	"github.com/carelinkhq/carelink/services/notification-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
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

	rdb := redis.NewClient(&redis.Options{
		Addr: config.String("REDIS_ADDR", "redis:6379"),
	})
	defer rdb.Close()

	// Channel senders and the registry. Enable flags come from config and can
	// turn a configured channel off without unwiring it.
	registry := channel.NewRegistry()
	registry.Register(channel.Email, email.NewSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@carelink.local"),
	))
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		registry.Register(channel.SMS, sms.NewWebhookSender(
			config.String("SMS_WEBHOOK_URL", ""),
			config.String("SMS_WEBHOOK_TOKEN", ""),
		))
	default:
		registry.Register(channel.SMS, sms.NewNoopSender())
	}
	registry.Register(channel.Push, push.NewSender(
		config.String("PUSH_GATEWAY_URL", ""),
		config.String("PUSH_GATEWAY_KEY", ""),
	))
	registry.SetEnabled(channel.Email, config.Bool("CHANNEL_EMAIL_ENABLED", true))
	registry.SetEnabled(channel.SMS, config.Bool("CHANNEL_SMS_ENABLED", true))
	registry.SetEnabled(channel.Push, config.Bool("CHANNEL_PUSH_ENABLED", true))

	maxAttempts, err := config.Int("NOTIFY_MAX_ATTEMPTS", 3)
	if err != nil || maxAttempts < 1 {
		logger.Error("invalid NOTIFY_MAX_ATTEMPTS", "err", err)
		panic("invalid NOTIFY_MAX_ATTEMPTS")
	}
	retryDelay, err := config.Duration("NOTIFY_RETRY_DELAY", 2*time.Second)
	if err != nil {
		panic(err)
	}

	recordsRepo := storage.NewRepository(pool)
	dispatcher := dispatch.New(registry, dispatch.RetryPolicy{
		MaxAttempts: maxAttempts,
		Delay:       retryDelay,
	}, recordsRepo, logger)

	// Outcome events let other services react to delivery results.
	publisher, err := eventx.Open(ctx, logger, eventx.Config{
		Brokers: config.String("KAFKA_BROKERS", "kafka:9092"),
	})
	if err != nil {
		logger.Error("broker connection failed", "err", err)
		panic(err)
	}
	defer publisher.Close()

	dedupTTL, err := config.Duration("INBOX_TTL", 24*time.Hour)
	if err != nil {
		panic(err)
	}
	messageInbox := inbox.New(rdb, dedupTTL)

	consumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", "kafka:9092"),
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "notification.requested"),
	}
	eventConsumer := consumer.New(logger, messageInbox, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
		var req handlers.SendRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			logger.Error("invalid notification request payload", "err", err)
			return nil
		}
		message := req.Message()
		if err := message.Validate(); err != nil {
			logger.Error("notification request missing required fields", "err", err)
			return nil
		}

		types := req.ChannelTypes
		if len(types) == 0 && strings.TrimSpace(req.ChannelType) != "" {
			types = []string{req.ChannelType}
		}
		if len(types) == 0 {
			logger.Error("notification request without channel types")
			return nil
		}

		results := dispatcher.SendMulti(ctx, types, message)
		delivered := false
		for _, ok := range results {
			delivered = delivered || ok
		}

		evtType := eventx.NotificationSent
		if !delivered {
			evtType = eventx.NotificationFailed
		}
		env, err := publisher.PublishEvent(ctx, eventx.DomainEvent{
			Type:        evtType,
			AggregateID: message.AppointmentID(),
			Payload: map[string]any{
				"appointment_id": message.AppointmentID(),
				"recipient":      message.Recipient,
				"results":        results,
				"dispatched_at":  time.Now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return err
		}

		logger.Info("notification request processed",
			"message_id", env.MessageID,
			"recipient", message.Recipient,
			"results", results,
		)
		return nil
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", "kafka:9092"))},
		runtime.ReadyCheck{Name: "redis", Check: inbox.ReadyCheck(rdb)},
	)
	handlers.New(dispatcher, recordsRepo, logger).Register(mux)

	rateLimit, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		panic(err)
	}
	limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, "notify")

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}),
		limiter.Middleware(logger, true),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
