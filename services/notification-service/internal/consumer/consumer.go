package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/carelinkhq/carelink/libs/kafkax"
)

// Dedup is the message-id inbox used to drop redelivered messages.
type Dedup interface {
	Record(ctx context.Context, messageID string) (bool, error)
}

type Handler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	dedup   Dedup
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, dedup Dedup, cfg Config, handler Handler) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		dedup:   dedup,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !pause(ctx, 1*time.Second) {
				return
			}
			continue
		}

		c.process(ctx, msg)
	}
}

// pause waits out the read-error backoff; it reports false when ctx is
// cancelled first so shutdown stays prompt during a broker outage.
func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractMessageMeta(msg)

	// A message without an id and key cannot be deduplicated; process it
	// rather than let every id-less message collide on one inbox entry.
	if meta.MessageID == "" {
		c.logger.Warn("message without id, dedup skipped", "topic", msg.Topic)
	} else {
		fresh, err := c.dedup.Record(ctxSpan, meta.MessageID)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err)
			span.RecordError(err)
			return
		}
		if !fresh {
			c.logger.Info("duplicate message ignored", "message_id", meta.MessageID, "routing_key", meta.RoutingKey)
			return
		}
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error", "err", err, "message_id", meta.MessageID)
		span.RecordError(err)
	}
}
