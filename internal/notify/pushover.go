package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// PushoverURL is the Pushover message endpoint.
const PushoverURL = "https://api.pushover.net/1/messages.json"

// Compile-time interface guard.
var _ Notifier = (*Pushover)(nil)

// PushoverConfig holds Pushover credentials.
type PushoverConfig struct {
	UserKey  string `mapstructure:"user_key"`
	APIToken string `mapstructure:"api_token"` //nolint:gosec // G101: config field name, not a credential
	URL      string `mapstructure:"url"`
}

// Enabled reports whether both credentials are set.
func (c PushoverConfig) Enabled() bool {
	return c.UserKey != "" && c.APIToken != ""
}

// Pushover posts form-encoded messages to Pushover.
type Pushover struct {
	client *http.Client
	cfg    PushoverConfig
}

// NewPushover returns a Pushover notifier. client may be nil.
func NewPushover(cfg PushoverConfig, client *http.Client) *Pushover {
	if cfg.URL == "" {
		cfg.URL = PushoverURL
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Pushover{client: client, cfg: cfg}
}

// Notify sends msg.
func (p *Pushover) Notify(ctx context.Context, msg Message) error {
	form := url.Values{
		"token":   {p.cfg.APIToken},
		"user":    {p.cfg.UserKey},
		"message": {msg.Body},
	}
	if msg.Title != "" {
		form.Set("title", msg.Title)
	}
	if msg.Priority != 0 {
		form.Set("priority", strconv.Itoa(msg.Priority))
	}
	if msg.Sound != "" {
		form.Set("sound", msg.Sound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover POST: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse

	return checkStatus("pushover", resp.StatusCode)
}

// Type returns the notifier type identifier.
func (p *Pushover) Type() string {
	return "pushover"
}
