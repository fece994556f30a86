package eventx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/carelinkhq/carelink/libs/kafkax"
)

// kafkaClient maps the exchange contract onto Kafka: the routing key is the
// topic (one event type per topic), the aggregate id is the partition key,
// and message id + timestamp travel in headers so consumers can deduplicate
// without parsing the payload.
type kafkaClient struct {
	writer *kafka.Writer
}

func openKafkaClient(ctx context.Context, rawBrokers string) (*kafkaClient, error) {
	brokers := kafkax.SplitBrokers(rawBrokers)
	if len(brokers) == 0 {
		return nil, errors.New("eventx: no kafka brokers configured")
	}

	// Dial eagerly so a misconfigured or unreachable broker fails the host
	// at startup instead of on the first business operation.
	dialer := kafka.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("eventx: connect %s: %w", brokers[0], err)
	}
	_ = conn.Close()

	return &kafkaClient{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.Hash{},
			// Full acks on every write; this client only ever carries
			// persistent envelopes.
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (c *kafkaClient) Publish(ctx context.Context, env Envelope) error {
	headers := []kafka.Header{
		{Key: "message_id", Value: []byte(env.MessageID)},
		{Key: "routing_key", Value: []byte(env.RoutingKey)},
		{Key: "ts", Value: []byte(strconv.FormatInt(env.Timestamp.Unix(), 10))},
	}
	headers = kafkax.InjectTraceHeaders(ctx, headers)

	msg := kafka.Message{
		Topic:   env.RoutingKey,
		Value:   env.Body,
		Headers: headers,
	}
	if env.AggregateID != "" {
		msg.Key = []byte(env.AggregateID)
	}
	return c.writer.WriteMessages(ctx, msg)
}

func (c *kafkaClient) Close() error {
	return c.writer.Close()
}
