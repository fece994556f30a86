package push

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

// Sender posts push notifications to an HTTP push gateway (FCM-bridge style).
// The device token is the message recipient.
type Sender struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewSender(url string, apiKey string) *Sender {
	return &Sender{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *Sender) Available() bool {
	return s.url != ""
}

func (s *Sender) Send(ctx context.Context, msg channel.Message) error {
	if s.url == "" {
		return errors.New("push gateway url not configured")
	}
	payload := map[string]any{
		"token": msg.Recipient,
		"title": msg.Subject,
		"body":  msg.Content,
	}
	if len(msg.Metadata) > 0 {
		payload["data"] = msg.Metadata
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
	if s.apiKey != "" {
		req.Header.Set("Authorization", "key="+s.apiKey)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New("push gateway returned non-2xx")
	}
	return nil
}

var _ channel.Sender = (*Sender)(nil)
