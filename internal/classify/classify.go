// Package classify flags property-wide outages: hours in which a large share
// of a property's networks were down at once.
package classify

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/event"
	"github.com/wanops/outagewatch/internal/outage"
)

// Threshold is a fraction of a property's networks plus the comparator used
// against it.
type Threshold struct {
	Fraction  float64
	Inclusive bool
}

var (
	// Reporting flags hours where strictly more than 80% of networks were down.
	Reporting = Threshold{Fraction: 0.80}
	// Alerting notifies when at least 75% of networks were down.
	Alerting = Threshold{Fraction: 0.75, Inclusive: true}
)

// Breached reports whether affected out of total crosses the threshold. A
// property with no networks never does.
func (t Threshold) Breached(affected, total int) bool {
	if total <= 0 {
		return false
	}
	ratio := float64(affected) / float64(total)
	if t.Inclusive {
		return ratio >= t.Fraction
	}
	return ratio > t.Fraction
}

func (t Threshold) String() string {
	op := ">"
	if t.Inclusive {
		op = ">="
	}
	return fmt.Sprintf("%s %.0f%%", op, t.Fraction*100)
}

// Alert is one property-hour over threshold.
type Alert struct {
	PropertyID int64   `json:"property_id"`
	Property   string  `json:"property_name"`
	Island     string  `json:"island,omitempty"`
	Hour       string  `json:"outage_hour"`
	Affected   int     `json:"networks_with_outages"`
	Total      int     `json:"total_networks"`
	Percentage float64 `json:"outage_percentage"`
}

// Classify keeps the coverage rows that breach t, ordered newest hour first,
// then by severity, then by property name.
func Classify(coverage []outage.HourCoverage, t Threshold) []Alert {
	var out []Alert
	for _, c := range coverage {
		if !t.Breached(c.AffectedNetworks, c.TotalNetworks) {
			continue
		}
		out = append(out, Alert{
			PropertyID: c.PropertyID,
			Property:   c.PropertyName,
			Island:     c.Island,
			Hour:       c.Hour,
			Affected:   c.AffectedNetworks,
			Total:      c.TotalNetworks,
			Percentage: percentage(c.AffectedNetworks, c.TotalNetworks),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Hour != b.Hour {
			return a.Hour > b.Hour
		}
		if a.Percentage != b.Percentage {
			return a.Percentage > b.Percentage
		}
		return a.Property < b.Property
	})
	return out
}

func percentage(affected, total int) float64 {
	return math.Round(float64(affected)/float64(total)*1000) / 10
}

// LatestPerProperty keeps the first alert of each property from an ordered
// Classify result, i.e. its most recent breaching hour.
func LatestPerProperty(alerts []Alert) []Alert {
	seen := make(map[int64]bool)
	var out []Alert
	for _, a := range alerts {
		if seen[a.PropertyID] {
			continue
		}
		seen[a.PropertyID] = true
		out = append(out, a)
	}
	return out
}

// Classifier runs Classify over the store's recent coverage.
type Classifier struct {
	store  *outage.Store
	clock  clockwork.Clock
	bus    *event.Bus
	logger *zap.Logger
}

// New returns a Classifier. bus may be nil.
func New(st *outage.Store, clock clockwork.Clock, bus *event.Bus, logger *zap.Logger) *Classifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{store: st, clock: clock, bus: bus, logger: logger}
}

// Recent classifies hours within lookback of now.
func (c *Classifier) Recent(ctx context.Context, lookback time.Duration, t Threshold) ([]Alert, error) {
	since := c.clock.Now().Add(-lookback)
	cov, err := c.store.HourCoverage(ctx, since)
	if err != nil {
		return nil, err
	}
	alerts := Classify(cov, t)
	c.logger.Debug("classified coverage",
		zap.Int("rows", len(cov)),
		zap.Int("alerts", len(alerts)),
		zap.Stringer("threshold", t))
	return alerts, nil
}

// Notify publishes the latest breaching hour of each property as one event
// and returns those alerts.
func (c *Classifier) Notify(ctx context.Context, lookback time.Duration, t Threshold) ([]Alert, error) {
	alerts, err := c.Recent(ctx, lookback, t)
	if err != nil {
		return nil, err
	}
	latest := LatestPerProperty(alerts)
	if c.bus != nil && len(latest) > 0 {
		c.bus.Publish(ctx, event.Event{
			Topic:     event.TopicPropertyWide,
			Source:    "classify",
			Timestamp: c.clock.Now().UTC(),
			Payload:   latest,
		})
	}
	if len(latest) > 0 {
		c.logger.Info("property-wide outages", zap.Int("properties", len(latest)))
	}
	return latest, nil
}
