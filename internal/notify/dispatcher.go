package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/event"
)

// Dispatcher handles bus events and delivers them to every notifier.
type Dispatcher struct {
	notifiers []Notifier
	logger    *zap.Logger
	tries     uint
	initial   time.Duration
}

// NewDispatcher returns a dispatcher over notifiers. Deliveries are tried
// three times with backoff starting at one second.
func NewDispatcher(logger *zap.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{notifiers: notifiers, logger: logger, tries: 3, initial: time.Second}
}

// WithRetry overrides the retry policy.
func (d *Dispatcher) WithRetry(tries uint, initial time.Duration) *Dispatcher {
	d.tries, d.initial = tries, initial
	return d
}

// Len reports how many notifiers are configured.
func (d *Dispatcher) Len() int { return len(d.notifiers) }

// Subscribe attaches the dispatcher to every topic on bus.
func (d *Dispatcher) Subscribe(bus *event.Bus) (unsubscribe func()) {
	return bus.SubscribeAll(d.Handle)
}

// Handle formats the event and delivers it. Failures are logged, never
// returned.
func (d *Dispatcher) Handle(ctx context.Context, e event.Event) {
	if len(d.notifiers) == 0 {
		return
	}
	msg, ok := Format(e)
	if !ok {
		return
	}
	for _, n := range d.notifiers {
		if err := Retry(ctx, n, msg, d.tries, d.initial); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("channel_type", n.Type()),
				zap.String("topic", e.Topic),
				zap.Error(err),
			)
			continue
		}
		d.logger.Debug("notification delivered",
			zap.String("channel_type", n.Type()),
			zap.String("topic", e.Topic),
			zap.String("title", msg.Title),
		)
	}
}

// FromConfig builds the notifiers whose credentials are present.
func FromConfig(p PushoverConfig, w WebhookConfig, timeout time.Duration) []Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var out []Notifier
	if p.Enabled() {
		out = append(out, NewPushover(p, newHTTPClient(timeout)))
	}
	if w.URL != "" {
		out = append(out, NewWebhook(w, newHTTPClient(timeout)))
	}
	return out
}
