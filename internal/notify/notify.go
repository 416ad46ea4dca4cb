// Package notify delivers pipeline events to operators over Pushover and
// signed JSON webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// Pushover priorities used by the pipeline.
const (
	PriorityNormal = 0
	PriorityHigh   = 1
)

// Message is one human-facing notification.
type Message struct {
	Topic    string
	Title    string
	Body     string
	Priority int
	Sound    string
	At       time.Time
	Data     any
}

// Notifier delivers messages through one channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
	// Type returns the channel identifier (e.g. "pushover", "webhook").
	Type() string
}

// statusError is a non-2xx delivery response.
type statusError struct {
	channel string
	code    int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.channel, e.code)
}

func checkStatus(channel string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := &statusError{channel: channel, code: code}
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// IsStatus reports whether err is a delivery rejected with the given status.
func IsStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}

// Retry delivers msg through n, retrying transient failures with
// exponential backoff up to tries attempts.
func Retry(ctx context.Context, n Notifier, msg Message, tries uint, initial time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	if initial > 0 {
		bo.InitialInterval = initial
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, n.Notify(ctx, msg)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(tries))
	return err
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
