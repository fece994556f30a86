package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/carelinkhq/carelink/libs/eventx"
)

const testSecret = "whsec_test_secret"

type fakePublisher struct {
	events []eventx.DomainEvent
	err    error
}

func (f *fakePublisher) PublishEvent(_ context.Context, evt eventx.DomainEvent) (eventx.Envelope, error) {
	if f.err != nil {
		return eventx.Envelope{}, f.err
	}
	f.events = append(f.events, evt)
	return eventx.Build(evt)
}

func signedRequest(t *testing.T, url string, payload string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(payload))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func newTestServer(pub *fakePublisher) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	mux := http.NewServeMux()
	New(pub, logger, testSecret, 5*time.Minute).Register(mux)
	return httptest.NewServer(mux)
}

func paymentSucceededPayload() string {
	return fmt.Sprintf(`{
		"id": "evt_1",
		"api_version": %q,
		"type": "payment_intent.succeeded",
		"created": %d,
		"data": {
			"object": {
				"id": "pi_123",
				"amount": 15000,
				"currency": "usd",
				"metadata": {"appointment_id": "apt-7", "patient_id": "pat-1"}
			}
		}
	}`, stripe.APIVersion, time.Now().Unix())
}

func TestStripeWebhook_PaymentSucceededPublishesPaymentProcessed(t *testing.T) {
	pub := &fakePublisher{}
	srv := newTestServer(pub)
	defer srv.Close()

	req := signedRequest(t, srv.URL+"/webhooks/stripe", paymentSucceededPayload())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	evt := pub.events[0]
	if evt.Type != eventx.PaymentProcessed || evt.AggregateID != "pi_123" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	payload, ok := evt.Payload.(map[string]any)
	if !ok || payload["appointment_id"] != "apt-7" {
		t.Fatalf("payload: %v", evt.Payload)
	}
}

func TestStripeWebhook_RefundPublishesRefundProcessed(t *testing.T) {
	pub := &fakePublisher{}
	srv := newTestServer(pub)
	defer srv.Close()

	payload := fmt.Sprintf(`{
		"id": "evt_2",
		"api_version": %q,
		"type": "charge.refunded",
		"created": %d,
		"data": {
			"object": {
				"id": "ch_9",
				"amount_refunded": 15000,
				"currency": "usd",
				"metadata": {"appointment_id": "apt-7"}
			}
		}
	}`, stripe.APIVersion, time.Now().Unix())

	req := signedRequest(t, srv.URL+"/webhooks/stripe", payload)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	if len(pub.events) != 1 || pub.events[0].Type != eventx.RefundProcessed {
		t.Fatalf("events: %+v", pub.events)
	}
}

func TestStripeWebhook_BadSignatureRejected(t *testing.T) {
	pub := &fakePublisher{}
	srv := newTestServer(pub)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/stripe", strings.NewReader(paymentSucceededPayload()))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Stripe-Signature", "t=0,v1=deadbeef")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	if len(pub.events) != 0 {
		t.Fatal("nothing may publish on a bad signature")
	}
}

func TestStripeWebhook_PublishFailureIs5xxForRedelivery(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	srv := newTestServer(pub)
	defer srv.Close()

	req := signedRequest(t, srv.URL+"/webhooks/stripe", paymentSucceededPayload())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500 so the provider redelivers", resp.StatusCode)
	}
}

func TestStripeWebhook_UnhandledTypeAcknowledged(t *testing.T) {
	pub := &fakePublisher{}
	srv := newTestServer(pub)
	defer srv.Close()

	payload := fmt.Sprintf(`{"id":"evt_3","api_version":%q,"type":"customer.created","created":%d,"data":{"object":{}}}`, stripe.APIVersion, time.Now().Unix())
	req := signedRequest(t, srv.URL+"/webhooks/stripe", payload)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200 ack", resp.StatusCode)
	}
	if len(pub.events) != 0 {
		t.Fatal("unhandled types must not publish")
	}
}
