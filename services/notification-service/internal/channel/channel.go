package channel

import (
	"context"
	"errors"
	"strings"
)

// Channel type names. Keys are case-sensitive; "email" is not a channel.
const (
	Email = "Email"
	SMS   = "SMS"
	Push  = "Push"
)

// Message is a recipient-addressed notification. Callers own it and it is
// immutable during dispatch. Metadata carries channel-specific rendering
// hints plus the appointment id used to link the stored record.
type Message struct {
	Recipient string
	Subject   string
	Content   string
	Metadata  map[string]any
}

var ErrInvalidMessage = errors.New("channel: message missing required fields")

// Validate rejects messages without recipient, subject or content. Boundaries
// call this before dispatch so misconfigured requests fail early instead of
// being silently defaulted.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Recipient) == "" ||
		strings.TrimSpace(m.Subject) == "" ||
		strings.TrimSpace(m.Content) == "" {
		return ErrInvalidMessage
	}
	return nil
}

// AppointmentID returns the appointment the message relates to, if the
// caller attached one.
func (m Message) AppointmentID() string {
	if m.Metadata == nil {
		return ""
	}
	id, _ := m.Metadata["appointment_id"].(string)
	return id
}

// Sender transmits a single message to a single recipient over one medium.
// Send returns an error for ordinary transport failures; it must not panic
// for them. Available is a cheap configuration-level check, not a probe of
// the remote provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Available() bool
}
