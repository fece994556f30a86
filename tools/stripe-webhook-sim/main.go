package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL     = flag.String("base-url", getenv("BASE_URL", "http://localhost:8084"), "billing service base url")
		evtType     = flag.String("type", getenv("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "stripe event type")
		appointment = flag.String("appointment-id", getenv("APPOINTMENT_ID", ""), "appointment_id metadata")
		patient     = flag.String("patient-id", getenv("PATIENT_ID", ""), "patient_id metadata")
		amount      = flag.Int64("amount", 15000, "amount in minor units")
		secret      = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*appointment) == "" {
		fatal("APPOINTMENT_ID is required")
	}

	now := time.Now().UTC()
	eventID := fmt.Sprintf("evt_test_%d", now.UnixNano())

	payload, err := buildEventJSON(eventID, *evtType, now, *appointment, *patient, *amount)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	fmt.Printf("status=%d\n", resp.StatusCode)
}

func buildEventJSON(eventID, eventType string, t time.Time, appointmentID, patientID string, amount int64) ([]byte, error) {
	created := t.Unix()
	metadata := map[string]any{
		"appointment_id": appointmentID,
	}
	if patientID != "" {
		metadata["patient_id"] = patientID
	}

	switch eventType {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		return json.Marshal(map[string]any{
			"id":      eventID,
			"object":  "event",
			"created": created,
			"type":    eventType,
			"data": map[string]any{
				"object": map[string]any{
					"id":       fmt.Sprintf("pi_test_%d", created),
					"object":   "payment_intent",
					"amount":   amount,
					"currency": "usd",
					"metadata": metadata,
				},
			},
		})
	case "charge.refunded":
		return json.Marshal(map[string]any{
			"id":      eventID,
			"object":  "event",
			"created": created,
			"type":    eventType,
			"data": map[string]any{
				"object": map[string]any{
					"id":              fmt.Sprintf("ch_test_%d", created),
					"object":          "charge",
					"amount_refunded": amount,
					"currency":        "usd",
					"metadata":        metadata,
				},
			},
		})
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
