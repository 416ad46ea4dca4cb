// Package ingest turns parsed outage and discovery feeds into store state:
// properties, networks, raw outages, hourly rollups and equipment links.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/event"
	"github.com/wanops/outagewatch/internal/feed"
	"github.com/wanops/outagewatch/internal/outage"
	"github.com/wanops/outagewatch/internal/region"
)

// Mode selects how a run treats existing state.
type Mode string

const (
	// ModeAppend purges outside the retention window and adds to what exists.
	ModeAppend Mode = "append"
	// ModeRebuild wipes all derived state and reloads from the input.
	ModeRebuild Mode = "rebuild"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAppend, ModeRebuild:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown ingest mode %q (want append or rebuild)", s)
}

// ErrAlreadyIngested is returned by an append run over input whose content
// hash matches a completed run since the last rebuild.
var ErrAlreadyIngested = errors.New("input already ingested")

// DefaultRetainDays is the append-mode retention window.
const DefaultRetainDays = 7

// Input is one run's parsed feeds. A nil Discovery selects outages-only mode.
type Input struct {
	Outages   *feed.Outages
	Discovery *feed.Discovery
}

// Options tune a single run.
type Options struct {
	Mode          Mode
	RetainDays    int
	Force         bool
	OutagesFile   string
	DiscoveryFile string
}

// NetworkChange describes a network added by a run.
type NetworkChange struct {
	ID            int64  `json:"network_id"`
	Property      string `json:"property"`
	StreetAddress string `json:"address,omitempty"`
	Customer      string `json:"customer,omitempty"`
}

// Result summarizes a run.
type Result struct {
	RunID         string
	Mode          Mode
	InputSHA256   string
	OutagesFile   string
	DiscoveryFile string
	StartedAt     time.Time
	FinishedAt    time.Time

	PropertiesProcessed      int
	PropertiesWithOutages    int
	PropertiesWithoutOutages int
	OutagesRecorded          int
	SkippedUnknownNetwork    int
	SkippedNotInDiscovery    int
	Rejected                 []feed.Rejection

	NetworksAdded     []NetworkChange
	NetworksRemoved   []outage.RemovedNetwork
	PropertiesRemoved []string
	Purged            outage.Purge
	Reconciled        int64
	Final             outage.Counts
}

// Engine runs ingest passes against an outage store.
type Engine struct {
	store    *outage.Store
	resolver *region.Resolver
	clock    clockwork.Clock
	bus      *event.Bus
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the clock used for retention cutoffs and stamps.
func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithResolver replaces the default island resolver.
func WithResolver(r *region.Resolver) Option { return func(e *Engine) { e.resolver = r } }

// WithBus publishes run lifecycle events to b.
func WithBus(b *event.Bus) Option { return func(e *Engine) { e.bus = b } }

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// NewEngine returns an Engine over st.
func NewEngine(st *outage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		resolver: region.Default(),
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// InputHash combines the content hashes of a run's inputs.
func InputHash(in Input) string {
	h := sha256.New()
	h.Write([]byte("outages:" + in.Outages.SHA256 + "\n"))
	if in.Discovery != nil {
		h.Write([]byte("discovery:" + in.Discovery.SHA256 + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Run executes one ingest pass. Fatal problems (including a duplicate
// append input) are returned before anything is written. Once the run has
// started, each property commits on its own in discovery mode and the whole
// run commits once in outages-only mode; on error or cancellation committed
// checkpoints stay.
func (e *Engine) Run(ctx context.Context, in Input, opts Options) (*Result, error) {
	if in.Outages == nil {
		return nil, errors.New("ingest: outage feed is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModeAppend
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.RetainDays <= 0 {
		opts.RetainDays = DefaultRetainDays
	}

	res := &Result{
		RunID:         uuid.NewString(),
		Mode:          opts.Mode,
		InputSHA256:   InputHash(in),
		OutagesFile:   opts.OutagesFile,
		DiscoveryFile: opts.DiscoveryFile,
		StartedAt:     e.clock.Now().UTC(),
	}
	res.Rejected = append(res.Rejected, in.Outages.Rejected...)
	if in.Discovery != nil {
		res.Rejected = append(res.Rejected, in.Discovery.Rejected...)
	}
	log := e.logger.With(zap.String("run_id", res.RunID), zap.String("mode", string(opts.Mode)))

	err := e.store.Tx(ctx, func(tx *outage.Tx) error {
		if opts.Mode == ModeAppend && !opts.Force {
			prior, found, err := tx.CompletedRunFor(ctx, res.InputSHA256)
			if err != nil {
				return err
			}
			if found {
				return fmt.Errorf("%w (run %s); use force to ingest again", ErrAlreadyIngested, prior)
			}
		}
		switch opts.Mode {
		case ModeRebuild:
			if err := tx.WipeAll(ctx); err != nil {
				return err
			}
		case ModeAppend:
			cutoff := res.StartedAt.AddDate(0, 0, -opts.RetainDays)
			p, err := tx.PurgeBefore(ctx, cutoff)
			if err != nil {
				return err
			}
			res.Purged = p
		}
		return tx.StartRun(ctx, outage.Run{
			ID:            res.RunID,
			Mode:          string(opts.Mode),
			InputSHA256:   res.InputSHA256,
			OutagesFile:   opts.OutagesFile,
			DiscoveryFile: opts.DiscoveryFile,
			StartedAt:     res.StartedAt,
		})
	})
	if err != nil {
		runsTotal.WithLabelValues(string(opts.Mode), "refused").Inc()
		return nil, err
	}
	log.Info("ingest started",
		zap.Int("outage_rows", len(in.Outages.Rows)),
		zap.Bool("discovery", in.Discovery != nil),
		zap.Int64("purged_outages", res.Purged.Outages))
	e.publish(ctx, event.TopicIngestStarted, res)

	for _, r := range res.Rejected {
		log.Warn("row rejected", zap.Int("line", r.Line), zap.String("reason", r.Reason))
	}
	rowsSkipped.WithLabelValues("rejected").Add(float64(len(res.Rejected)))

	if in.Discovery != nil {
		err = e.runDiscovery(ctx, in, res, log)
	} else {
		err = e.runOutagesOnly(ctx, in, res, log)
	}

	res.FinishedAt = e.clock.Now().UTC()
	runDuration.WithLabelValues(string(opts.Mode)).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	outagesRecorded.Add(float64(res.OutagesRecorded))
	rowsSkipped.WithLabelValues("unknown_network").Add(float64(res.SkippedUnknownNetwork))
	rowsSkipped.WithLabelValues("not_in_discovery").Add(float64(res.SkippedNotInDiscovery))

	finishCtx := context.WithoutCancel(ctx)
	if err != nil {
		runsTotal.WithLabelValues(string(opts.Mode), "failed").Inc()
		if ferr := e.store.FinishRun(finishCtx, res.RunID, outage.RunFailed, res.FinishedAt,
			res.OutagesRecorded, len(res.Rejected), err); ferr != nil {
			log.Error("record failed run", zap.Error(ferr))
		}
		log.Error("ingest failed", zap.Error(err), zap.Int("outages_recorded", res.OutagesRecorded))
		e.publish(finishCtx, event.TopicIngestFailed, FailedRun{Result: res, Err: err})
		return res, err
	}

	if err := e.store.FinishRun(finishCtx, res.RunID, outage.RunCompleted, res.FinishedAt,
		res.OutagesRecorded, len(res.Rejected), nil); err != nil {
		return res, err
	}
	runsTotal.WithLabelValues(string(opts.Mode), "completed").Inc()
	log.Info("ingest completed",
		zap.Int("properties", res.PropertiesProcessed),
		zap.Int("outages_recorded", res.OutagesRecorded),
		zap.Int("rejected", len(res.Rejected)),
		zap.Int("skipped_unknown", res.SkippedUnknownNetwork),
		zap.Int("networks_added", len(res.NetworksAdded)),
		zap.Int("networks_removed", len(res.NetworksRemoved)),
		zap.Int64("reconciled", res.Reconciled),
	)
	e.publish(ctx, event.TopicIngestCompleted, res)
	return res, nil
}

// FailedRun is the payload of TopicIngestFailed.
type FailedRun struct {
	Result *Result
	Err    error
}

func (e *Engine) publish(ctx context.Context, topic string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, event.Event{
		Topic:     topic,
		Source:    "ingest",
		Timestamp: e.clock.Now().UTC(),
		Payload:   payload,
	})
}

// runOutagesOnly records outages for networks already in the store, in a
// single transaction.
func (e *Engine) runOutagesOnly(ctx context.Context, in Input, res *Result, log *zap.Logger) error {
	return e.store.Tx(ctx, func(tx *outage.Tx) error {
		known, err := tx.KnownNetworks(ctx)
		if err != nil {
			return err
		}

		byProperty := make(map[int64][]feed.OutageRow)
		var order []int64
		located := make(map[int64]bool)
		for _, r := range in.Outages.Rows {
			pid, ok := known[r.NetworkID]
			if !ok {
				res.SkippedUnknownNetwork++
				continue
			}
			if _, seen := byProperty[pid]; !seen {
				order = append(order, pid)
			}
			byProperty[pid] = append(byProperty[pid], r)
			if !located[r.NetworkID] && hasLocation(r.Location) {
				located[r.NetworkID] = true
				if err := tx.FillNetworkLocation(ctx, r.NetworkID, r.Location); err != nil {
					return err
				}
			}
		}
		if res.SkippedUnknownNetwork > 0 {
			log.Warn("outages for unknown networks skipped", zap.Int("count", res.SkippedUnknownNetwork))
		}

		now := e.clock.Now()
		for _, pid := range order {
			rows := byProperty[pid]
			if err := tx.RecordOutages(ctx, pid, rows); err != nil {
				return err
			}
			if err := tx.RefreshPropertyTotals(ctx, pid); err != nil {
				return err
			}
			if err := tx.TouchProperty(ctx, pid, now); err != nil {
				return err
			}
			res.OutagesRecorded += len(rows)
			res.PropertiesWithOutages++
		}
		res.PropertiesProcessed = len(order)

		n, err := tx.Reconcile(ctx)
		if err != nil {
			return err
		}
		res.Reconciled = n
		res.Final, err = tx.Counts(ctx)
		return err
	})
}

func hasLocation(l feed.Location) bool {
	return l.City != "" || l.PostalCode != "" || l.Latitude != nil || l.Longitude != nil ||
		l.CountryCode != "" || l.Timezone != "" || l.Region != ""
}
