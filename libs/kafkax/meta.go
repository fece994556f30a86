package kafkax

import (
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageMeta is the canonical metadata carried in headers on every broker
// message, so consumers can deduplicate without parsing the payload.
type MessageMeta struct {
	MessageID  string
	RoutingKey string
	Timestamp  time.Time
}

func ExtractMessageMeta(msg kafka.Message) MessageMeta {
	id := HeaderValue(msg.Headers, "message_id")
	key := HeaderValue(msg.Headers, "routing_key")
	if id == "" {
		id = string(msg.Key)
	}
	if key == "" {
		key = msg.Topic
	}
	var ts time.Time
	if raw := HeaderValue(msg.Headers, "ts"); raw != "" {
		if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ts = time.Unix(sec, 0).UTC()
		}
	}
	return MessageMeta{MessageID: id, RoutingKey: key, Timestamp: ts}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
