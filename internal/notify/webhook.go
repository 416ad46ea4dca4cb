package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wanops/outagewatch/internal/version"
)

// Compile-time interface guard.
var _ Notifier = (*Webhook)(nil)

// WebhookConfig holds configuration for webhook delivery.
type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Secret  string            `mapstructure:"secret"` //nolint:gosec // G101: config field name, not a credential
	Headers map[string]string `mapstructure:"headers"`
}

// webhookPayload is the JSON body sent to webhook endpoints.
type webhookPayload struct {
	Topic     string    `json:"topic"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  int       `json:"priority"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Webhook delivers notifications via HTTP POST to a configured URL.
type Webhook struct {
	client *http.Client
	cfg    WebhookConfig
}

// NewWebhook returns a webhook notifier. client may be nil.
func NewWebhook(cfg WebhookConfig, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Webhook{client: client, cfg: cfg}
}

// Sign returns the hex HMAC-SHA256 of body under secret, as sent in
// X-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notify posts msg as JSON.
func (w *Webhook) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		Topic:     msg.Topic,
		Title:     msg.Title,
		Message:   msg.Body,
		Priority:  msg.Priority,
		Data:      msg.Data,
		Timestamp: msg.At.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "outagewatch/"+version.Short())
	if w.cfg.Secret != "" {
		req.Header.Set("X-Signature", Sign(w.cfg.Secret, body))
	}
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST %s: %w", w.cfg.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse

	return checkStatus("webhook", resp.StatusCode)
}

// Type returns the notifier type identifier.
func (w *Webhook) Type() string {
	return "webhook"
}
