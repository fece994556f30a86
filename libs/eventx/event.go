package eventx

import "errors"

// EventType is the closed set of domain events the platform publishes.
// Adding an event means adding a constant and its routing key below;
// Build rejects anything else.
type EventType string

const (
	AppointmentCreated   EventType = "AppointmentCreated"
	AppointmentCancelled EventType = "AppointmentCancelled"
	PaymentProcessed     EventType = "PaymentProcessed"
	PaymentFailed        EventType = "PaymentFailed"
	RefundProcessed      EventType = "RefundProcessed"
	NotificationSent     EventType = "NotificationSent"
	NotificationFailed   EventType = "NotificationFailed"
)

var routingKeys = map[EventType]string{
	AppointmentCreated:   "appointment.created",
	AppointmentCancelled: "appointment.cancelled",
	PaymentProcessed:     "payment.processed",
	PaymentFailed:        "payment.failed",
	RefundProcessed:      "refund.processed",
	NotificationSent:     "notification.sent",
	NotificationFailed:   "notification.failed",
}

// ErrUnknownEventType is returned by Build for an event type outside the
// closed set. This is a programming error, not a runtime condition.
var ErrUnknownEventType = errors.New("eventx: unknown event type")

// RoutingKey returns the dot-delimited routing key for a known event type.
func RoutingKey(t EventType) (string, bool) {
	key, ok := routingKeys[t]
	return key, ok
}

// DomainEvent is a fact about something that already happened. It is
// constructed by the triggering business operation and consumed exactly
// once by Build; it is never mutated.
type DomainEvent struct {
	Type        EventType
	AggregateID string
	Payload     any
}
