package eventx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// BrokerClient is the transport port behind the Publisher. The production
// client speaks Kafka; tests substitute an in-memory double.
type BrokerClient interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Publisher is the single writer to the domain-event exchange for a process.
// Delivery is at-least-once from a successful Publish onward. There is no
// outbox: a crash between a business commit and Publish loses the event,
// and callers must treat that window as an accepted limitation.
type Publisher struct {
	client    BrokerClient
	logger    *slog.Logger
	closeOnce sync.Once
}

type Config struct {
	// Brokers is a comma-separated broker list, e.g. "kafka-1:9092,kafka-2:9092".
	Brokers string
}

// Open establishes the broker connection and returns a ready Publisher.
// A connection failure here is unrecoverable for the calling process:
// publishing domain events is a correctness-critical side effect of every
// business operation, so hosts must fail fast rather than continue without it.
func Open(ctx context.Context, logger *slog.Logger, cfg Config) (*Publisher, error) {
	client, err := openKafkaClient(ctx, cfg.Brokers)
	if err != nil {
		return nil, err
	}
	return NewPublisher(client, logger), nil
}

// NewPublisher wraps an already-connected broker client.
func NewPublisher(client BrokerClient, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish writes one envelope to the exchange. Failures are propagated, never
// retried here: a silent retry could reorder events relative to other work
// done by the same business transaction, so the caller owns that decision.
func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	if err := p.client.Publish(ctx, env); err != nil {
		p.logger.Error("event publish failed",
			"routing_key", env.RoutingKey,
			"message_id", env.MessageID,
			"err", err,
		)
		return fmt.Errorf("eventx: publish %s: %w", env.RoutingKey, err)
	}
	return nil
}

// PublishEvent builds the envelope for a domain event and publishes it.
// The envelope is returned so callers can log or correlate the message id.
func (p *Publisher) PublishEvent(ctx context.Context, evt DomainEvent) (Envelope, error) {
	env, err := Build(evt)
	if err != nil {
		return Envelope{}, err
	}
	if err := p.Publish(ctx, env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Close releases the broker connection. Safe to call more than once, and
// never fails: an already-broken connection has nothing left to release.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if err := p.client.Close(); err != nil {
			p.logger.Warn("broker close error", "err", err)
		}
	})
}
