package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/carelinkhq/carelink/libs/eventx"
)

type EventPublisher interface {
	PublishEvent(ctx context.Context, evt eventx.DomainEvent) (eventx.Envelope, error)
}

// Handler turns verified Stripe webhooks into billing domain events. The
// signature check is the auth; the gateway exposes this path publicly.
type Handler struct {
	publisher EventPublisher
	logger    *slog.Logger
	secret    string
	tolerance time.Duration
}

func New(publisher EventPublisher, logger *slog.Logger, secret string, tolerance time.Duration) *Handler {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Handler{publisher: publisher, logger: logger, secret: secret, tolerance: tolerance}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/webhooks/stripe", h.StripeWebhook)
}

func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	domainEvt, ok := h.mapEvent(evt)
	if !ok {
		// Unhandled Stripe event types are acknowledged so Stripe stops
		// retrying them.
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	env, err := h.publisher.PublishEvent(r.Context(), domainEvt)
	if err != nil {
		// A 5xx makes Stripe redeliver; consumers deduplicate on the
		// provider event id carried in the payload.
		h.logger.Error("billing event publish failed", "provider_event_id", evt.ID, "err", err)
		http.Error(w, "failed to publish billing event", http.StatusInternalServerError)
		return
	}

	h.logger.Info("billing provider event published",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"routing_key", env.RoutingKey,
		"message_id", env.MessageID,
	)
	writeJSON(w, http.StatusOK, map[string]any{"status": "published"})
}

func (h *Handler) mapEvent(evt stripe.Event) (eventx.DomainEvent, bool) {
	occurredAt := time.Unix(evt.Created, 0).UTC().Format(time.RFC3339)

	switch evt.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			h.logger.Error("stripe: invalid payment intent payload", "err", err)
			return eventx.DomainEvent{}, false
		}
		evtType := eventx.PaymentProcessed
		if evt.Type == "payment_intent.payment_failed" {
			evtType = eventx.PaymentFailed
		}
		return eventx.DomainEvent{
			Type:        evtType,
			AggregateID: intent.ID,
			Payload: map[string]any{
				"provider":          "stripe",
				"provider_event_id": evt.ID,
				"payment_id":        intent.ID,
				"amount":            intent.Amount,
				"currency":          string(intent.Currency),
				"appointment_id":    intent.Metadata["appointment_id"],
				"patient_id":        intent.Metadata["patient_id"],
				"occurred_at":       occurredAt,
			},
		}, true

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &charge); err != nil {
			h.logger.Error("stripe: invalid charge payload", "err", err)
			return eventx.DomainEvent{}, false
		}
		return eventx.DomainEvent{
			Type:        eventx.RefundProcessed,
			AggregateID: charge.ID,
			Payload: map[string]any{
				"provider":          "stripe",
				"provider_event_id": evt.ID,
				"charge_id":         charge.ID,
				"amount_refunded":   charge.AmountRefunded,
				"currency":          string(charge.Currency),
				"appointment_id":    charge.Metadata["appointment_id"],
				"occurred_at":       occurredAt,
			},
		}, true
	}

	return eventx.DomainEvent{}, false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
