package ongoing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/event"
	"github.com/wanops/outagewatch/internal/outage"
)

// MultidayThresholdHours is the duration above which a recorded outage is
// re-checked against the vendor.
const MultidayThresholdHours = 24

// Correction is a recorded outage whose end the vendor reports differently.
type Correction struct {
	Outage   outage.Outage `json:"outage"`
	End      time.Time     `json:"vendor_end"`
	NewHours float64       `json:"vendor_duration"`
}

// MultidayResult summarizes a multi-day check.
type MultidayResult struct {
	Checked     int          `json:"outages_checked"`
	Unmatched   int          `json:"unmatched"`
	Errors      int          `json:"errors"`
	Applied     bool         `json:"applied"`
	Corrections []Correction `json:"corrections"`
}

// Multiday re-checks outages from the last days that lasted more than a day.
// The vendor is queried from each outage's start; when it reports a different
// end for the same start, the outage is corrected if update is set.
func (t *Tracker) Multiday(ctx context.Context, days int, update bool) (MultidayResult, error) {
	res := MultidayResult{Applied: update}
	since := t.clock.Now().UTC().AddDate(0, 0, -days)
	long, err := t.store.LongOutages(ctx, since, MultidayThresholdHours)
	if err != nil {
		return res, err
	}
	t.logger.Info("checking multi-day outages", zap.Int("outages", len(long)), zap.Int("days", days), zap.Bool("update", update))

	for _, o := range long {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("multiday interrupted: %w", err)
		}
		res.Checked++
		start, err := outage.ParseStamp(o.Start)
		if err != nil {
			res.Errors++
			continue
		}
		recs, err := t.source.NetworkOutages(ctx, o.NetworkID, start)
		if err != nil {
			pollRequests.WithLabelValues("multiday", "error").Inc()
			t.logger.Warn("multiday lookup failed", zap.Int64("outage_id", o.ID), zap.Error(err))
			res.Errors++
			continue
		}
		pollRequests.WithLabelValues("multiday", "ok").Inc()

		match, ok := matchStart(recs, start)
		if !ok {
			res.Unmatched++
			continue
		}
		if match.End == nil || outage.Stamp(*match.End) == o.End || match.End.Before(start) {
			continue
		}
		c := Correction{Outage: o, End: *match.End, NewHours: match.End.Sub(start).Hours()}
		res.Corrections = append(res.Corrections, c)
		if !update {
			continue
		}
		if err := t.store.Tx(ctx, func(tx *outage.Tx) error {
			return tx.CorrectOutageEnd(ctx, o, *match.End)
		}); err != nil {
			return res, err
		}
		t.logger.Info("outage end corrected",
			zap.Int64("outage_id", o.ID),
			zap.String("old_end", o.End),
			zap.String("new_end", outage.Stamp(*match.End)))
	}

	if t.bus != nil && update && len(res.Corrections) > 0 {
		t.bus.Publish(ctx, event.Event{
			Topic:     event.TopicMultidayFixed,
			Source:    "ongoing",
			Timestamp: t.clock.Now().UTC(),
			Payload:   res,
		})
	}
	return res, nil
}

func matchStart(recs []Record, start time.Time) (Record, bool) {
	for _, r := range recs {
		if r.Start.Equal(start) {
			return r, true
		}
	}
	return Record{}, false
}
