package ongoing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/event"
	"github.com/wanops/outagewatch/internal/outage"
)

// DefaultLookback is how far back polls look for recent outages.
const DefaultLookback = 48 * time.Hour

// Stats summarizes one poll.
type Stats struct {
	Checked     int `json:"networks_checked"`
	Detected    int `json:"ongoing_detected"`
	StillOpen   int `json:"still_open"`
	Resolved    int `json:"resolved"`
	ClosedStale int `json:"closed_by_poll"`
	Ignored     int `json:"ignored_unknown_network"`
	Errors      int `json:"errors"`
	// Complete is false when a bulk poll stopped on a failed page.
	Complete bool `json:"complete"`
}

func (s *Stats) add(o Stats) {
	s.Checked += o.Checked
	s.Detected += o.Detected
	s.StillOpen += o.StillOpen
	s.Resolved += o.Resolved
	s.ClosedStale += o.ClosedStale
	s.Ignored += o.Ignored
	s.Errors += o.Errors
}

// Detection is one absent -> open transition.
type Detection struct {
	NetworkID int64     `json:"network_id"`
	Start     time.Time `json:"start"`
	Reason    string    `json:"reason,omitempty"`
}

// Tracker reconciles vendor answers with the ongoing-outage table.
type Tracker struct {
	store       *outage.Store
	source      Source
	clock       clockwork.Clock
	bus         *event.Bus
	logger      *zap.Logger
	concurrency int
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock injects the clock used for lookbacks and stamps.
func WithClock(c clockwork.Clock) TrackerOption { return func(t *Tracker) { t.clock = c } }

// WithBus publishes detections and resolutions to b.
func WithBus(b *event.Bus) TrackerOption { return func(t *Tracker) { t.bus = b } }

// WithLogger sets the tracker logger.
func WithLogger(l *zap.Logger) TrackerOption { return func(t *Tracker) { t.logger = l } }

// WithConcurrency bounds in-flight vendor calls.
func WithConcurrency(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// NewTracker returns a Tracker over st that asks src.
func NewTracker(st *outage.Store, src Source, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:       st,
		source:      src,
		clock:       clockwork.NewRealClock(),
		logger:      zap.NewNop(),
		concurrency: 4,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Poll asks the vendor about every network with an outage in the lookback
// window or an open tracked outage. A failed call only skips that network.
func (t *Tracker) Poll(ctx context.Context, lookback time.Duration) (Stats, error) {
	now := t.clock.Now().UTC()
	since := now.Add(-lookback)
	ids, err := t.store.PollCandidates(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	t.logger.Info("polling networks", zap.Int("networks", len(ids)), zap.Duration("lookback", lookback))

	var (
		mu       sync.Mutex
		total    = Stats{Complete: true}
		detected []Detection
	)
	pool := pond.NewPool(t.concurrency)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)

	for _, id := range ids {
		group.Submit(func() {
			recs, err := t.source.NetworkOutages(ctx, id, since)
			if err != nil {
				pollRequests.WithLabelValues("network", "error").Inc()
				t.logger.Warn("network poll failed", zap.Int64("network_id", id), zap.Error(err))
				mu.Lock()
				total.Errors++
				mu.Unlock()
				return
			}
			pollRequests.WithLabelValues("network", "ok").Inc()

			var st Stats
			var det []Detection
			err = t.store.Tx(ctx, func(tx *outage.Tx) error {
				var err error
				st, det, err = t.apply(ctx, tx, id, recs, now, true)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.logger.Warn("apply poll result", zap.Int64("network_id", id), zap.Error(err))
				total.Errors++
				return
			}
			st.Checked = 1
			total.add(st)
			detected = append(detected, det...)
		})
	}
	if err := group.Wait(); err != nil {
		return total, fmt.Errorf("poll interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return total, fmt.Errorf("poll interrupted: %w", err)
	}

	t.finish(ctx, "network", total, detected)
	return total, nil
}

// PollBulk pages through the fleet-wide feed. Pages are fetched until the
// feed stops returning a cursor; a failed page ends paging, and only a
// complete pass may close tracked outages the feed no longer reports.
func (t *Tracker) PollBulk(ctx context.Context, lookback time.Duration) (Stats, error) {
	now := t.clock.Now().UTC()
	since := now.Add(-lookback)
	total := Stats{Complete: true}

	byNetwork := make(map[int64][]Record)
	var order []int64
	cursor := ""
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("poll interrupted: %w", err)
		}
		recs, next, err := t.source.BulkPage(ctx, since, cursor)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return total, fmt.Errorf("poll interrupted: %w", err)
			}
			pollRequests.WithLabelValues("bulk", "error").Inc()
			t.logger.Warn("bulk page failed", zap.Int("page", page), zap.Error(err))
			total.Errors++
			total.Complete = false
			break
		}
		pollRequests.WithLabelValues("bulk", "ok").Inc()
		for _, r := range recs {
			if _, seen := byNetwork[r.NetworkID]; !seen {
				order = append(order, r.NetworkID)
			}
			byNetwork[r.NetworkID] = append(byNetwork[r.NetworkID], r)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	var detected []Detection
	err := t.store.Tx(ctx, func(tx *outage.Tx) error {
		detected = detected[:0]
		run := Stats{}
		for _, id := range order {
			st, det, err := t.apply(ctx, tx, id, byNetwork[id], now, false)
			if err != nil {
				return err
			}
			if st.Ignored == 0 {
				st.Checked = 1
			}
			run.add(st)
			detected = append(detected, det...)
		}
		if total.Complete {
			open, err := tx.OpenOngoing(ctx, 0)
			if err != nil {
				return err
			}
			for _, o := range open {
				if reportedOpen(byNetwork[o.NetworkID], o.Start) {
					continue
				}
				if err := tx.CloseByPoll(ctx, o.ID, now); err != nil {
					return err
				}
				run.ClosedStale++
			}
		}
		total.add(run)
		return nil
	})
	if err != nil {
		return total, err
	}

	t.finish(ctx, "bulk", total, detected)
	return total, nil
}

// apply folds one network's vendor records into the table. Unknown networks
// are ignored. With sweep set, tracked open rows the vendor no longer reports
// as open are closed as resolved by the poll.
func (t *Tracker) apply(ctx context.Context, tx *outage.Tx, id int64, recs []Record, now time.Time, sweep bool) (Stats, []Detection, error) {
	var st Stats
	known, err := tx.NetworkExists(ctx, id)
	if err != nil {
		return st, nil, err
	}
	if !known {
		st.Ignored = 1
		return st, nil, nil
	}

	var det []Detection
	for _, r := range recs {
		if r.Open() {
			created, err := tx.ObserveOpen(ctx, outage.Observation{
				NetworkID: id, Start: r.Start, Reason: r.Reason,
			}, now)
			if err != nil {
				return st, nil, err
			}
			if created {
				st.Detected++
				det = append(det, Detection{NetworkID: id, Start: r.Start, Reason: r.Reason})
			} else {
				st.StillOpen++
			}
			continue
		}
		removed, err := tx.ObserveClosed(ctx, id, r.Start)
		if err != nil {
			return st, nil, err
		}
		if removed {
			st.Resolved++
		}
	}

	if !sweep {
		return st, det, nil
	}
	open, err := tx.OpenOngoing(ctx, id)
	if err != nil {
		return st, nil, err
	}
	for _, o := range open {
		if reportedOpen(recs, o.Start) {
			continue
		}
		if err := tx.CloseByPoll(ctx, o.ID, now); err != nil {
			return st, nil, err
		}
		st.ClosedStale++
	}
	return st, det, nil
}

func reportedOpen(recs []Record, start string) bool {
	for _, r := range recs {
		if r.Open() && outage.Stamp(r.Start) == start {
			return true
		}
	}
	return false
}

func (t *Tracker) finish(ctx context.Context, mode string, st Stats, detected []Detection) {
	transitions.WithLabelValues("detected").Add(float64(st.Detected))
	transitions.WithLabelValues("resolved").Add(float64(st.Resolved))
	transitions.WithLabelValues("closed_by_poll").Add(float64(st.ClosedStale))
	if open, err := t.store.ListOpen(ctx, 0); err == nil {
		openGauge.Set(float64(len(open)))
	}

	t.logger.Info("poll finished",
		zap.String("mode", mode),
		zap.Int("checked", st.Checked),
		zap.Int("detected", st.Detected),
		zap.Int("still_open", st.StillOpen),
		zap.Int("resolved", st.Resolved),
		zap.Int("closed_by_poll", st.ClosedStale),
		zap.Int("ignored", st.Ignored),
		zap.Int("errors", st.Errors),
		zap.Bool("complete", st.Complete))

	if t.bus == nil {
		return
	}
	at := t.clock.Now().UTC()
	if len(detected) > 0 {
		t.bus.Publish(ctx, event.Event{Topic: event.TopicOngoingDetected, Source: "ongoing", Timestamp: at, Payload: detected})
	}
	if st.Resolved+st.ClosedStale > 0 {
		t.bus.Publish(ctx, event.Event{Topic: event.TopicOngoingResolved, Source: "ongoing", Timestamp: at, Payload: st})
	}
}
