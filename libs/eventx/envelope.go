package eventx

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire-ready unit handed to the broker. It lives for a
// single publish call; durability past that point is the broker's job.
type Envelope struct {
	RoutingKey  string
	MessageID   string
	AggregateID string
	Timestamp   time.Time
	Persistent  bool
	Body        []byte
}

// Build turns a domain event into a routable envelope. The routing key is a
// pure function of the event type; the message id is fresh on every call, so
// a republished event gets a new id and consumers treat it as a new delivery.
func Build(evt DomainEvent) (Envelope, error) {
	key, ok := routingKeys[evt.Type]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEventType, evt.Type)
	}

	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventx: marshal %s payload: %w", evt.Type, err)
	}

	return Envelope{
		RoutingKey:  key,
		MessageID:   uuid.NewString(),
		AggregateID: evt.AggregateID,
		Timestamp:   time.Now().UTC(),
		Persistent:  true,
		Body:        body,
	}, nil
}
