package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/carelinkhq/carelink/services/notification-service/internal/channel"
)

// WebhookSender relays SMS through an HTTP gateway (provider-agnostic).
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url string, token string) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *WebhookSender) Available() bool {
	return s.url != ""
}

func (s *WebhookSender) Send(ctx context.Context, msg channel.Message) error {
	if s.url == "" {
		return errors.New("sms webhook url not configured")
	}
	payload := map[string]string{
		"to":   msg.Recipient,
		"body": msg.Content,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New("sms webhook returned non-2xx")
	}
	return nil
}

// NoopSender accepts everything and sends nothing. Used in dev environments
// without an SMS gateway.
type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) Available() bool {
	return true
}

func (s *NoopSender) Send(_ context.Context, _ channel.Message) error {
	return nil
}

var (
	_ channel.Sender = (*WebhookSender)(nil)
	_ channel.Sender = (*NoopSender)(nil)
)
